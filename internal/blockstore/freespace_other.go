// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package blockstore

// freeBytes has no portable syscall on non-unix GOOS in this module's
// dependency set; reporting a large constant means the disk-full check
// never fires there, which is conservative (spill can still fail on an
// actual write error, surfaced as errs.ErrDiskIO) rather than wrongly
// blocking pushes.
func freeBytes(folder string) (int64, error) {
	return 1 << 62, nil
}
