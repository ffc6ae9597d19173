// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the dispatch core (C8, spec §4.8): it drains
// a block store queue and hands packets to a downstream Processor in
// non-decreasing timestamp order, re-merging across whatever blocks are
// concurrently open using a small binary heap — exactly container/heap's
// textbook use case, a k-way merge of sorted sequences.
package dispatch

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/ring"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// Source is whatever a Dispatcher drains — normally blockstore.Queue.
type Source interface {
	Pop() (*block.Block, bool)
}

// Processor is the downstream consumer invoked once per packet, in
// non-decreasing timestamp order, per spec §6's on_packet contract.
type Processor interface {
	OnPacket(hdr block.PacketHeader, payload []byte, blk *block.Block, index int, dlt uint16, sensorID string)
}

// Config configures a Dispatcher.
type Config struct {
	// Window is how many of the oldest blocks stay open for cursor-merging
	// at once (spec §4.8: "keeping the N oldest unfinished blocks open").
	Window int
	// DltMax bounds how many distinct per-DLT dead handles are resolved
	// and cached; spec §4.8's dlt_max.
	DltMax int
	// SensorID is passed through to every Processor.OnPacket call.
	SensorID string
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 8
	}
	if c.DltMax <= 0 {
		c.DltMax = 64
	}
	return c
}

// Dispatcher drains a Source and re-merges packets across the currently
// open blocks by timestamp before handing them to a Processor.
type Dispatcher struct {
	cfg  Config
	src  Source
	proc Processor
	log  *zap.Logger
	st   *stats.Counters

	dlt dltCache

	doTerminate atomic.Bool
	wg          sync.WaitGroup
}

// New constructs a Dispatcher.
func New(src Source, proc Processor, cfg Config, log *zap.Logger, st *stats.Counters) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:  cfg,
		src:  src,
		proc: proc,
		log:  log,
		st:   st,
		dlt:  newDltCache(cfg.DltMax),
	}
}

// Start launches the dispatcher's single goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop signals termination and waits for the goroutine to exit.
func (d *Dispatcher) Stop() {
	d.doTerminate.Store(true)
	d.wg.Wait()
}

// cursor tracks one open block's next-to-emit packet index.
type cursor struct {
	blk *block.Block
	idx int
	off []int64
}

func newCursor(blk *block.Block) *cursor {
	return &cursor{blk: blk, off: block.Offsets(blk.Headers)}
}

func (c *cursor) ts() int64      { return c.blk.Headers[c.idx].TimestampUS }
func (c *cursor) done() bool     { return c.idx >= len(c.blk.Headers) }
func (c *cursor) packet() (block.PacketHeader, []byte) {
	h := c.blk.Headers[c.idx]
	start := c.off[c.idx]
	return h, c.blk.Payload[start : start+int64(h.CapLen)]
}

// cursorHeap orders open blocks' cursors by their current packet's
// timestamp, the k-way merge at the heart of spec §4.8's "emit the packet
// with smallest utime among their current cursors."
type cursorHeap []*cursor

func (h cursorHeap) Len() int           { return len(h) }
func (h cursorHeap) Less(i, j int) bool { return h[i].ts() < h[j].ts() }
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)        { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	open := &cursorHeap{}
	heap.Init(open)

	var backoff ring.Backoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.fill(open)

		if open.Len() == 0 {
			if d.doTerminate.Load() {
				return
			}
			backoff.Wait()
			continue
		}
		backoff.Reset()

		c := (*open)[0]
		hdr, payload := c.packet()
		dlt := d.dlt.resolve(hdr.DLT)
		d.proc.OnPacket(hdr, payload, c.blk, c.idx, dlt, d.cfg.SensorID)
		d.st.PacketsDelivered.Add(1)
		c.idx++

		if c.done() {
			heap.Pop(open)
		} else {
			heap.Fix(open, 0)
		}
	}
}

// fill tops up the open set up to cfg.Window by pulling fresh blocks from
// the source, so at most Window blocks are ever merged concurrently.
func (d *Dispatcher) fill(open *cursorHeap) {
	for open.Len() < d.cfg.Window {
		blk, ok := d.src.Pop()
		if !ok {
			return
		}
		if len(blk.Headers) == 0 {
			continue
		}
		if blk.Payload == nil {
			payload, err := block.Decompress(blk)
			if err != nil {
				d.st.Corrupt.Add(1)
				d.log.Warn("dispatch: dropping block, decompression failed", zap.Uint64("block_id", blk.ID), zap.Error(err))
				continue
			}
			blk.Payload = payload
		}
		heap.Push(open, newCursor(blk))
	}
}
