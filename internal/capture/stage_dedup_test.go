// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// TestDedupDropsRepeatWithZeroValuedDigestHalf covers the dedup cache's
// occupied sentinel: a packet whose digest's first 8 bytes happen to be
// all-zero must still be recognized as a repeat on its second occurrence,
// rather than silently bypassing the dedup cache forever.
func TestDedupDropsRepeatWithZeroValuedDigestHalf(t *testing.T) {
	st := &stats.Counters{}
	cfg := Config{
		RingCapacity: 64,
		PoolCapacity: 64,
		PoolPageSize: 8,
		DedupEnabled: true,
		Block:        block.Options{MaxBytes: 1 << 20, MaxCount: 8},
		BlockMaxAge:  time.Hour,
	}
	p := New("dedup-test", NewPipeDriver(bytes.NewReader(nil), 1), cfg, zap.NewNop(), st)

	acq := p.slots.Acquirer()
	mkEntry := func() Entry {
		slot, err := acq.Acquire()
		require.NoError(t, err)
		slot.CapLen = 16
		slot.WireLen = 16
		e := Entry{Slot: slot}
		// Digest left entirely zero: bytes [0:8] (the cache value) and
		// [14:16] (the cache index) are both the zero value.
		return e
	}

	var b Batch
	b.Add(mkEntry())
	b.Add(mkEntry())
	require.NoError(t, p.md2ToDedup.Enqueue(&b))
	close(p.md2Done)
	p.doTerminate.Store(true)

	p.wg.Add(1)
	go p.runDedup(context.Background())
	p.wg.Wait()

	var total int
	for {
		blk, err := p.Blocks.Dequeue()
		if err != nil {
			break
		}
		total += len(blk.Headers)
	}
	require.Equal(t, 1, total, "second packet with an all-zero digest half must be deduped, not re-appended")
}
