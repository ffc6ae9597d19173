// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stats holds the atomic counters the capture core exposes for
// observability. No exporter is wired here — the core only ships the
// counters themselves; anything that scrapes or prints them is an external
// collaborator.
package stats

import "sync/atomic"

// Counters is one error-kind-to-counter table, safe for concurrent
// increment from any pipeline stage.
type Counters struct {
	CaptureTransient atomic.Int64
	CaptureFatal     atomic.Int64
	PoolExhausted    atomic.Int64
	RingFull         atomic.Int64
	MemoryCeiling    atomic.Int64
	DiskFull         atomic.Int64
	DiskIO           atomic.Int64
	MirrorConnect    atomic.Int64
	MirrorIO         atomic.Int64
	Corrupt          atomic.Int64

	// BypassBufferSizeExceeded counts packets dropped by the read stage
	// when the defrag ring is full, named after the source counter it
	// replaces.
	BypassBufferSizeExceeded atomic.Int64

	PacketsDelivered atomic.Int64
	BlocksSpilled    atomic.Int64
	BlocksDrained    atomic.Int64
}

// Snapshot is a point-in-time copy of Counters suitable for logging or
// returning from a stats API, since Counters itself is not copyable once in
// use (atomic.Int64 carries a noCopy guard).
type Snapshot struct {
	CaptureTransient         int64
	CaptureFatal             int64
	PoolExhausted            int64
	RingFull                 int64
	MemoryCeiling            int64
	DiskFull                 int64
	DiskIO                   int64
	MirrorConnect            int64
	MirrorIO                 int64
	Corrupt                  int64
	BypassBufferSizeExceeded int64
	PacketsDelivered         int64
	BlocksSpilled            int64
	BlocksDrained            int64
}

// Snapshot reads every counter. Individual loads are not mutually
// consistent with each other, which is fine for statistics.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		CaptureTransient:         c.CaptureTransient.Load(),
		CaptureFatal:             c.CaptureFatal.Load(),
		PoolExhausted:            c.PoolExhausted.Load(),
		RingFull:                 c.RingFull.Load(),
		MemoryCeiling:            c.MemoryCeiling.Load(),
		DiskFull:                 c.DiskFull.Load(),
		DiskIO:                   c.DiskIO.Load(),
		MirrorConnect:            c.MirrorConnect.Load(),
		MirrorIO:                 c.MirrorIO.Load(),
		Corrupt:                  c.Corrupt.Load(),
		BypassBufferSizeExceeded: c.BypassBufferSizeExceeded.Load(),
		PacketsDelivered:         c.PacketsDelivered.Load(),
		BlocksSpilled:            c.BlocksSpilled.Load(),
		BlocksDrained:            c.BlocksDrained.Load(),
	}
}
