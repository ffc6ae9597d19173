// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"encoding/binary"
	"time"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/ring"
)

// dedupWindowSize is the fixed 65536-slot direct-mapped digest cache from
// spec §4.4.5/glossary ("Dedup window"). Not configurable — the spec fixes
// it at 65536 slots of 8 bytes each.
const dedupWindowSize = 1 << 16

// runDedup is the dedup stage (spec §4.4.5): maintains a direct-mapped hash
// cache of recent digests, drops matches, and appends survivors to this
// pipeline's block.Builder, sealing and forwarding to Blocks when full or
// stale.
func (p *Pipeline) runDedup(ctx context.Context) {
	defer p.wg.Done()

	var cache [dedupWindowSize]uint64
	var occupied [dedupWindowSize]bool
	var backoff ring.Backoff

	builder := block.NewBuilder(p.nextBlockID.Add(1)-1, p.cfg.Block)
	lastAppend := time.Now()

	seal := func() {
		if !builder.Dirty() {
			return
		}
		sealed := builder.Seal()
		if err := p.Blocks.Enqueue(&sealed); err != nil {
			p.stats.RingFull.Add(1)
		}
		builder = block.NewBuilder(p.nextBlockID.Add(1)-1, p.cfg.Block)
		lastAppend = time.Now()
	}

	appendPacket := func(e *Entry) {
		slot := e.Slot
		hdr := block.PacketHeader{
			TimestampUS: slot.TimestampUS,
			WireLen:     uint32(slot.WireLen),
			DLT:         slot.DLT,
			LinkOffset:  uint16(e.LinkOffset),
		}
		payload := slot.Data[:slot.CapLen]

		if err := builder.Append(hdr, payload); err == block.ErrFull {
			seal()
			_ = builder.Append(hdr, payload)
		}
		lastAppend = time.Now()
		p.slots.Release(slot)
	}

	staleTicker := time.NewTicker(p.cfg.BlockMaxAge)
	defer staleTicker.Stop()

	for {
		select {
		case <-staleTicker.C:
			if time.Since(lastAppend) >= p.cfg.BlockMaxAge {
				seal()
			}
		default:
		}

		b, ok, done := p.nextBatch(p.md2ToDedup, p.md2Done, &backoff)
		if done {
			seal()
			return
		}
		if !ok {
			continue
		}

		for i := 0; i < b.Count; i++ {
			e := &b.Entries[i]
			if !p.cfg.DedupEnabled {
				appendPacket(e)
				continue
			}

			// Index by the digest's low 16 bits (spec §4.4.5); the stored
			// 8-byte value is the digest's other half, so a cache hit still
			// needs that half to match before the packet is dropped.
			idx := binary.BigEndian.Uint16(e.Digest[14:16])
			val := binary.BigEndian.Uint64(e.Digest[0:8])
			if cache[idx] == val && occupied[idx] {
				p.slots.Release(e.Slot)
				continue
			}
			cache[idx] = val
			occupied[idx] = true
			appendPacket(e)
		}
	}
}
