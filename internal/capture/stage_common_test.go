// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/pcapflow/internal/ring"
)

// TestNextBatchDrainsPendingBatchAfterUpstreamDone covers the shutdown race
// a naive "exit as soon as doTerminate is observed" loop would miss: a
// batch already sitting in the ring when upstream finishes must still be
// delivered, never silently dropped.
func TestNextBatchDrainsPendingBatchAfterUpstreamDone(t *testing.T) {
	p := &Pipeline{}
	p.doTerminate.Store(true)

	in := ring.NewSPSC[Batch](4)
	upstreamDone := make(chan struct{})
	close(upstreamDone)

	var pending Batch
	pending.Add(Entry{LinkOffset: 7})
	require.NoError(t, in.Enqueue(&pending))

	var backoff ring.Backoff
	got, ok, done := p.nextBatch(in, upstreamDone, &backoff)
	require.True(t, ok, "a batch left in the ring must still be returned")
	require.False(t, done)
	require.Equal(t, 1, got.Count)
	require.Equal(t, 7, got.Entries[0].LinkOffset)

	// Ring is now empty and upstream is done: the next call must signal
	// exit, not spin forever or report ok with a stale/zero batch.
	_, ok, done = p.nextBatch(in, upstreamDone, &backoff)
	require.False(t, ok)
	require.True(t, done)
}

// TestNextBatchWaitsWhileUpstreamStillRunning covers the companion case: an
// empty ring while terminating but upstream not yet done must never be
// treated as final, since upstream could still enqueue its last batch.
func TestNextBatchWaitsWhileUpstreamStillRunning(t *testing.T) {
	p := &Pipeline{}
	p.doTerminate.Store(true)

	in := ring.NewSPSC[Batch](4)
	upstreamDone := make(chan struct{}) // never closed in this test

	var backoff ring.Backoff
	_, ok, done := p.nextBatch(in, upstreamDone, &backoff)
	require.False(t, ok)
	require.False(t, done, "must not exit while upstream might still enqueue")
}

// TestNextBatchReturnsImmediatelyWhenNotTerminating covers the steady-state
// path: a ready batch is returned regardless of termination state.
func TestNextBatchReturnsImmediatelyWhenNotTerminating(t *testing.T) {
	p := &Pipeline{}

	in := ring.NewSPSC[Batch](4)
	upstreamDone := make(chan struct{})

	var b Batch
	b.Add(Entry{LinkOffset: 3})
	require.NoError(t, in.Enqueue(&b))

	var backoff ring.Backoff
	got, ok, done := p.nextBatch(in, upstreamDone, &backoff)
	require.True(t, ok)
	require.False(t, done)
	require.Equal(t, 3, got.Entries[0].LinkOffset)
}
