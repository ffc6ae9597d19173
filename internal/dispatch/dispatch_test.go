// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/dispatch"
	"code.hybscloud.com/pcapflow/internal/stats"
)

type fakeSource struct {
	mu     sync.Mutex
	blocks []*block.Block
}

func (s *fakeSource) push(b *block.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
}

func (s *fakeSource) Pop() (*block.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blocks) == 0 {
		return nil, false
	}
	b := s.blocks[0]
	s.blocks = s.blocks[1:]
	return b, true
}

type recordingProcessor struct {
	mu  sync.Mutex
	ts  []int64
	got chan struct{}
}

func newRecordingProcessor(expect int) *recordingProcessor {
	return &recordingProcessor{got: make(chan struct{}, expect)}
}

func (p *recordingProcessor) OnPacket(hdr block.PacketHeader, _ []byte, _ *block.Block, _ int, _ uint16, _ string) {
	p.mu.Lock()
	p.ts = append(p.ts, hdr.TimestampUS)
	p.mu.Unlock()
	p.got <- struct{}{}
}

func mkBlockAt(id uint64, timestamps ...int64) *block.Block {
	b := block.NewBuilder(id, block.Options{MaxBytes: 1 << 20, MaxCount: 1000})
	for _, ts := range timestamps {
		_ = b.Append(block.PacketHeader{TimestampUS: ts}, []byte("x"))
	}
	return b.Seal()
}

func TestDispatcherMergesByTimestampAcrossBlocks(t *testing.T) {
	src := &fakeSource{}
	// Two "interfaces'" worth of blocks with interleaved timestamps.
	src.push(mkBlockAt(0, 1, 3, 5))
	src.push(mkBlockAt(1, 2, 4, 6))

	proc := newRecordingProcessor(6)
	var st stats.Counters
	d := dispatch.New(src, proc, dispatch.Config{Window: 4}, zap.NewNop(), &st)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := 0; i < 6; i++ {
		select {
		case <-proc.got:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for dispatched packet")
		}
	}
	cancel()
	d.Stop()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6}, proc.ts)
}
