// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package capture implements the interface reader pipeline (C4, spec §4.4):
// per interface, five stages — read, defrag, md1, md2, dedup — each its own
// goroutine, connected by internal/ring.SPSC rings, feeding a block.Builder
// that the writer (writer.go) drains round-robin into a shared block store.
package capture

import "code.hybscloud.com/pcapflow/internal/pool"

// Slot is the packet-buffer pool's reusable unit (spec §3, "Packet slot"):
// a fixed-capacity buffer holding one captured frame plus the metadata the
// pipeline attaches to it. Capacity equals the owning pipeline's snaplen
// and never grows; Data is re-sliced to CapLen on each reuse.
type Slot struct {
	TimestampUS int64
	WireLen     int
	CapLen      int
	DLT         uint16
	LinkOffset  int

	// Data is pre-allocated to snaplen by pool.Pool.Init and never
	// reallocated; Data[:CapLen] is the valid region for the packet
	// currently occupying this slot.
	Data []byte
}

// NewSlotPool builds a pool.Pool[Slot] whose slots carry a Data buffer of
// exactly snaplen bytes, satisfying spec §4.1's "Fixed capacity equal to
// the configured snap length."
func NewSlotPool(capacity, snaplen int, opts pool.Options) *pool.Pool[Slot] {
	p := pool.New[Slot](capacity, opts)
	p.Init(func(s *Slot) {
		s.Data = make([]byte, snaplen)
	})
	return p
}
