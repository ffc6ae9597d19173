// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockstore_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/blockstore"
	"code.hybscloud.com/pcapflow/internal/stats"
)

func mkBlock(id uint64, n int) *block.Block {
	b := block.NewBuilder(id, block.Options{MaxBytes: 1 << 30, MaxCount: 1000000})
	payload := make([]byte, n)
	_ = b.Append(block.PacketHeader{TimestampUS: int64(id)}, payload)
	return b.Seal()
}

func TestQueueFIFOMemoryOnly(t *testing.T) {
	var st stats.Counters
	q, err := blockstore.NewQueue(blockstore.Config{
		MemoryCeilingBytes: 1 << 20,
		DiskSpillEnabled:   false,
	}, zap.NewNop(), &st)
	require.NoError(t, err)

	for i := uint64(0); i < 10; i++ {
		require.NoError(t, q.Push(mkBlock(i, 100)))
	}

	for i := uint64(0); i < 10; i++ {
		blk, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, blk.ID)
	}

	_, ok := q.Pop()
	require.False(t, ok)
}

func TestQueueSpillsToDiskAndDrains(t *testing.T) {
	dir := t.TempDir()
	var st stats.Counters
	q, err := blockstore.NewQueue(blockstore.Config{
		MemoryCeilingBytes: 256,
		DiskSpillEnabled:   true,
		DiskSpillFolder:    dir,
		DiskFreeMinBytes:   0,
		FileStoreMaxBytes:  512,
		FileStoreMaxAge:    time.Hour,
	}, zap.NewNop(), &st)
	require.NoError(t, err)

	const n = 50
	for i := uint64(0); i < n; i++ {
		require.NoError(t, q.Push(mkBlock(i, 64)))
	}

	for i := uint64(0); i < n; i++ {
		blk, ok := q.Pop()
		require.True(t, ok, "pop %d", i)
		require.Equal(t, i, blk.ID, "FIFO order violated at pop %d", i)
	}

	_, ok := q.Pop()
	require.False(t, ok)

	require.Greater(t, st.BlocksSpilled.Load(), int64(0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "spill directory should be empty after full drain")
}

func TestQueueMemoryCeilingWithoutSpillDrops(t *testing.T) {
	var st stats.Counters
	q, err := blockstore.NewQueue(blockstore.Config{
		MemoryCeilingBytes: 10,
		DiskSpillEnabled:   false,
	}, zap.NewNop(), &st)
	require.NoError(t, err)

	require.NoError(t, q.Push(mkBlock(0, 5)))
	err = q.Push(mkBlock(1, 100))
	require.Error(t, err)
	require.Equal(t, int64(1), st.MemoryCeiling.Load())
}
