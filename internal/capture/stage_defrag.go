// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"time"

	"code.hybscloud.com/pcapflow/internal/ring"
)

// runDefrag is the defrag stage (spec §4.4.2): reassembles IP fragments
// using a table keyed by (src, dst, ip-id, protocol), pruned on a ticker;
// reassembled packets (and pass-through non-fragments) forward to md1.
//
// Reassembly allocates a fresh slot from this stage's own Acquirer, a local
// cache over the pipeline's single shared pool (the stage has no pool
// instance of its own), since the reassembled datagram's length generally
// differs from any single fragment's; the fragments' own slots are released
// back to the shared pool once their bytes have been copied out.
func (p *Pipeline) runDefrag(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.defragDone)

	if !p.cfg.DefragEnabled {
		p.passThrough(p.readToDefrag, p.defragToMd1, p.readDone)
		return
	}

	acq := p.slots.Acquirer()
	table := newDefragTable(p.cfg.DefragMaxAge)
	pruneTicker := time.NewTicker(p.cfg.DefragMaxAge)
	defer pruneTicker.Stop()

	var out Batch
	var backoff ring.Backoff

	flush := func() {
		if out.Count == 0 {
			return
		}
		if err := p.defragToMd1.Enqueue(&out); err != nil {
			p.stats.RingFull.Add(1)
			for i := 0; i < out.Count; i++ {
				p.slots.Release(out.Entries[i].Slot)
			}
		}
		out.Reset()
	}

	emit := func(e Entry) {
		out.Add(e)
		if out.Full() {
			flush()
		}
	}

	for {
		select {
		case <-pruneTicker.C:
			table.prune(time.Now())
		default:
		}

		in, ok, done := p.nextBatch(p.readToDefrag, p.readDone, &backoff)
		if done {
			flush()
			return
		}
		if !ok {
			// Input is idle: hand on the partial batch instead of holding it.
			flush()
			continue
		}

		for i := 0; i < in.Count; i++ {
			e := in.Entries[i]
			slot := e.Slot
			data := slot.Data[e.LinkOffset:slot.CapLen]

			info := parseIPv4(data)
			if info.malformed {
				p.slots.Release(slot)
				continue
			}
			if !info.isFragment() {
				emit(e)
				continue
			}

			ts, dlt := slot.TimestampUS, slot.DLT
			reassembled := table.add(time.Now(), info, append([]byte(nil), data...))
			p.slots.Release(slot)
			if reassembled == nil {
				continue
			}

			newSlot, aerr := acq.Acquire()
			if aerr != nil {
				p.stats.PoolExhausted.Add(1)
				continue
			}
			n := copy(newSlot.Data, reassembled)
			if n < len(reassembled) {
				n = len(newSlot.Data)
			}
			newSlot.CapLen = n
			newSlot.WireLen = n
			newSlot.TimestampUS = ts
			newSlot.DLT = dlt
			newSlot.LinkOffset = 0
			emit(Entry{Slot: newSlot, LinkOffset: 0})
		}
	}
}

// passThrough forwards every batch unchanged; used when defrag is disabled
// by config but must still relay the pipeline. upstreamDone is the done
// channel of whichever stage feeds in (see nextBatch in stage_common.go).
func (p *Pipeline) passThrough(in, out *ring.SPSC[Batch], upstreamDone <-chan struct{}) {
	var backoff ring.Backoff
	for {
		b, ok, done := p.nextBatch(in, upstreamDone, &backoff)
		if done {
			return
		}
		if !ok {
			continue
		}
		if err := out.Enqueue(&b); err != nil {
			p.stats.RingFull.Add(1)
			for i := 0; i < b.Count; i++ {
				p.slots.Release(b.Entries[i].Slot)
			}
		}
	}
}
