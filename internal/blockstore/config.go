// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package blockstore implements the block store queue (C6, spec §4.6): a
// two-tier FIFO of blocks with an in-memory deque and a chain of bounded
// disk files, preserving global push order across the memory/disk
// boundary. It is an internal collaborator of internal/dispatch, not an
// independently reusable API, per spec §9's note on the source's
// friend-class coupling between pcap_store_queue and its reader.
package blockstore

import "time"

// Config configures one Queue's memory ceiling and disk spill policy
// (spec §6).
type Config struct {
	MemoryCeilingBytes int64

	DiskSpillEnabled bool
	DiskSpillFolder  string
	DiskFreeMinBytes int64

	FileStoreMaxBytes int64
	FileStoreMaxAge   time.Duration

	// FreeSpacePollInterval is accepted and defaulted but not read by
	// Queue: disk free space is checked on every spill rather than on a
	// periodic poll.
	FreeSpacePollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MemoryCeilingBytes <= 0 {
		c.MemoryCeilingBytes = 64 << 20
	}
	if c.FileStoreMaxBytes <= 0 {
		c.FileStoreMaxBytes = 8 << 20
	}
	if c.FileStoreMaxAge <= 0 {
		c.FileStoreMaxAge = 30 * time.Second
	}
	if c.FreeSpacePollInterval <= 0 {
		c.FreeSpacePollInterval = 2 * time.Second
	}
	return c
}
