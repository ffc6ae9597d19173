// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/ring"
)

// BlockSink is whatever a Writer pushes sealed blocks into — normally
// blockstore.Queue, kept as an interface here so internal/capture does not
// import internal/blockstore (spec §9 treats the block store as dispatch's
// internal collaborator, not something the capture pipeline should know
// the concrete type of).
type BlockSink interface {
	Push(*block.Block) error
}

// Writer is the block writer (C5, spec §4.5): it drains one Blocks ring
// per active interface Pipeline into a shared BlockSink, polling
// round-robin across interfaces so no single busy interface starves the
// others — the explicit resolution to spec §9's open question on polling
// fairness.
type Writer struct {
	log   *zap.Logger
	sink  BlockSink
	pipes []*Pipeline

	start atomic.Uint64

	doTerminate atomic.Bool
	wg          sync.WaitGroup
}

// NewWriter constructs a Writer over pipes, all feeding sink.
func NewWriter(pipes []*Pipeline, sink BlockSink, log *zap.Logger) *Writer {
	return &Writer{log: log, sink: sink, pipes: pipes}
}

// Start launches the writer's single goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals termination and waits for the writer goroutine to exit.
func (w *Writer) Stop() {
	w.doTerminate.Store(true)
	w.wg.Wait()
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()
	if len(w.pipes) == 0 {
		return
	}

	var backoff ring.Backoff
	for !w.doTerminate.Load() {
		select {
		case <-ctx.Done():
			w.drainOnce()
			return
		default:
		}

		if w.pollOnce() {
			backoff.Reset()
			continue
		}
		backoff.Wait()
	}
	w.drainOnce()
}

// pollOnce visits every pipeline exactly once, starting from a rotating
// index, and reports whether it moved at least one block — the
// round-robin fairness policy from spec §9's Open Questions.
func (w *Writer) pollOnce() bool {
	n := len(w.pipes)
	start := int(w.start.Add(1)-1) % n
	moved := false
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if w.drainOne(w.pipes[idx]) {
			moved = true
		}
	}
	return moved
}

func (w *Writer) drainOne(p *Pipeline) bool {
	blk, err := p.Blocks.Dequeue()
	if err != nil {
		return false
	}
	if pushErr := w.sink.Push(blk); pushErr != nil {
		w.log.Warn("block writer: sink rejected block", zap.String("interface", p.Name), zap.Error(pushErr))
	}
	return true
}

// drainOnce sweeps every pipeline's ring once more after termination so
// whatever sealed while the writer was shutting down still reaches the
// sink instead of leaking.
func (w *Writer) drainOnce() {
	for _, p := range w.pipes {
		for {
			if !w.drainOne(p) {
				break
			}
		}
	}
}
