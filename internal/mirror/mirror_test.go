// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mirror_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/mirror"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// memSource is a mirror.Source backed by a plain slice, standing in for
// blockstore.Queue in tests.
type memSource struct {
	mu     sync.Mutex
	blocks []*block.Block
}

func (s *memSource) push(b *block.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
}

func (s *memSource) Pop() (*block.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blocks) == 0 {
		return nil, false
	}
	b := s.blocks[0]
	s.blocks = s.blocks[1:]
	return b, true
}

// memSink collects whatever a Receiver pushes.
type memSink struct {
	mu     sync.Mutex
	blocks []*block.Block
	got    chan struct{}
}

func newMemSink(expect int) *memSink {
	return &memSink{got: make(chan struct{}, expect)}
}

func (s *memSink) Push(b *block.Block) error {
	s.mu.Lock()
	s.blocks = append(s.blocks, b)
	s.mu.Unlock()
	s.got <- struct{}{}
	return nil
}

func mkBlock(id uint64) *block.Block {
	b := block.NewBuilder(id, block.Options{MaxBytes: 1 << 20, MaxCount: 100})
	_ = b.Append(block.PacketHeader{TimestampUS: int64(id)}, []byte("hello"))
	return b.Seal()
}

func TestSenderReceiverRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	var srcStats, dstStats stats.Counters
	log := zap.NewNop()

	sink := newMemSink(3)
	receiver := mirror.NewReceiver("127.0.0.1:0", sink, log, &dstStats)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, receiver.Start(ctx))
	defer receiver.Stop()

	addr := receiver.Addr()

	source := &memSource{}
	source.push(mkBlock(1))
	source.push(mkBlock(2))
	source.push(mkBlock(3))

	sender := mirror.NewSender(addr, source, mirror.BackoffConfig{Floor: 10 * time.Millisecond}, log, &srcStats)
	sender.Start(ctx)
	defer sender.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-sink.got:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for mirrored block")
		}
	}

	sink.mu.Lock()
	require.Len(t, sink.blocks, 3)
	sink.mu.Unlock()
}
