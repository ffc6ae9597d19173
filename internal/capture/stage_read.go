// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/errs"
	"code.hybscloud.com/pcapflow/internal/pool"
)

// runRead is the read stage (spec §4.4.1): pulls frames from the Driver,
// copies each into a pool.Slot, and batches them onto readToDefrag.
func (p *Pipeline) runRead(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.readDone)
	acq := p.slots.Acquirer()
	var batch Batch

	flush := func() {
		if batch.Count == 0 {
			return
		}
		if err := p.readToDefrag.Enqueue(&batch); err != nil {
			p.stats.RingFull.Add(1)
			p.stats.BypassBufferSizeExceeded.Add(int64(batch.Count))
			for i := 0; i < batch.Count; i++ {
				p.slots.Release(batch.Entries[i].Slot)
			}
		}
		batch.Reset()
	}

	for !p.terminating() {
		select {
		case <-ctx.Done():
			flush()
			return
		default:
		}

		hdr, payload, err := p.driver.Next()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				flush()
				continue
			}
			if errors.Is(err, errs.ErrCaptureFatal) {
				p.stats.CaptureFatal.Add(1)
				flush()
				p.log.Error("capture driver fatal error, terminating pipeline", zap.Error(err))
				return
			}
			p.stats.CaptureTransient.Add(1)
			continue
		}

		slot, err := acq.Acquire()
		if err != nil {
			if errors.Is(err, pool.ErrExhausted) {
				p.stats.PoolExhausted.Add(1)
				continue
			}
			continue
		}

		capLen := hdr.CapLen
		if capLen > len(slot.Data) {
			capLen = len(slot.Data)
		}
		n := copy(slot.Data, payload[:capLen])
		slot.CapLen = n
		slot.WireLen = hdr.WireLen
		slot.TimestampUS = hdr.TimestampUS
		slot.DLT = p.driver.DLT()
		slot.LinkOffset = 0

		batch.Add(Entry{Slot: slot, LinkOffset: 0})
		if batch.Full() {
			flush()
		}
	}
	flush()
}
