// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import "code.hybscloud.com/pcapflow/internal/ring"

// nextBatch is the shared drain-to-completion loop body for every stage
// downstream of read (defrag, md1, md2, dedup). It returns (batch, true,
// false) once a batch is available, (_, false, false) when the caller
// should back off and retry, and (_, false, true) once the stage must exit
// because termination was requested, its immediate upstream goroutine has
// fully stopped, and one final Dequeue still found the input ring empty.
//
// upstreamDone must close strictly after upstream's last Enqueue onto in
// (every stage does this via defer close(...) right before returning), so
// observing it closed and then issuing one more Dequeue can never miss a
// batch enqueued just before shutdown — spec §5's "stages exit once their
// input ring is drained."
func (p *Pipeline) nextBatch(in *ring.SPSC[Batch], upstreamDone <-chan struct{}, backoff *ring.Backoff) (Batch, bool, bool) {
	b, err := in.Dequeue()
	if err == nil {
		backoff.Reset()
		return b, true, false
	}

	if p.terminating() {
		select {
		case <-upstreamDone:
			if b2, err2 := in.Dequeue(); err2 == nil {
				return b2, true, false
			}
			return Batch{}, false, true
		default:
		}
	}

	backoff.Wait()
	return Batch{}, false, false
}
