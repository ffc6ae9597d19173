// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"crypto/sha256"

	"code.hybscloud.com/pcapflow/internal/ring"
)

// runMD implements both md1 and md2 (spec §4.4.3/4.4.4): the content
// digest is split across two stages so each can run on its own core with a
// small working set. firstHalf computes digest bytes [0:8] over the first
// half of the packet; the second pass computes bytes [8:16] over the
// second half, completing the digest dedup later matches against.
// upstreamDone is the done channel of whichever stage feeds in; myDone is
// closed on return so whatever stage reads out can drain safely in turn.
func (p *Pipeline) runMD(ctx context.Context, in, out *ring.SPSC[Batch], firstHalf bool, upstreamDone <-chan struct{}, myDone chan struct{}) {
	defer p.wg.Done()
	defer close(myDone)
	var backoff ring.Backoff

	for {
		b, ok, done := p.nextBatch(in, upstreamDone, &backoff)
		if done {
			return
		}
		if !ok {
			continue
		}

		for i := 0; i < b.Count; i++ {
			digestHalf(&b.Entries[i], firstHalf)
		}

		if err := out.Enqueue(&b); err != nil {
			p.stats.RingFull.Add(1)
			for i := 0; i < b.Count; i++ {
				p.slots.Release(b.Entries[i].Slot)
			}
		}
	}
}

// digestHalf hashes half of e's packet bytes (IP header through payload,
// skipping link-layer bytes that vary with mirroring/framing) into the
// corresponding half of e.Digest.
func digestHalf(e *Entry, firstHalf bool) {
	slot := e.Slot
	data := slot.Data[e.LinkOffset:slot.CapLen]
	mid := len(data) / 2

	var part []byte
	var dst []byte
	if firstHalf {
		part = data[:mid]
		dst = e.Digest[0:8]
	} else {
		part = data[mid:]
		dst = e.Digest[8:16]
	}

	sum := sha256.Sum256(part)
	copy(dst, sum[:8])
}
