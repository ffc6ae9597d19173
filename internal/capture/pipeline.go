// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/pool"
	"code.hybscloud.com/pcapflow/internal/ring"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// Config configures one interface Pipeline. It carries only the fields the
// pipeline itself needs, translated from config.Config's full surface by
// the caller (normally the root pcapflow.Core constructor).
type Config struct {
	Snaplen        int
	RingCapacity   int
	PoolCapacity   int
	PoolPageSize   int
	PoolLocalPages int

	DedupEnabled  bool
	DefragEnabled bool
	DefragMaxAge  time.Duration

	Block       block.Options
	BlockMaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.Snaplen <= 0 {
		c.Snaplen = 65536
	}
	if c.RingCapacity <= 0 {
		c.RingCapacity = 4096
	}
	if c.PoolCapacity <= 0 {
		c.PoolCapacity = 8192
	}
	if c.PoolPageSize <= 0 {
		c.PoolPageSize = 100
	}
	if c.PoolLocalPages <= 0 {
		c.PoolLocalPages = 5
	}
	if c.DefragMaxAge <= 0 {
		c.DefragMaxAge = 30 * time.Second
	}
	if c.BlockMaxAge <= 0 {
		c.BlockMaxAge = 2 * time.Second
	}
	return c
}

// Pipeline is one interface's five-stage reader pipeline (spec §4.4): read
// → defrag → md1 → md2 → dedup, each its own goroutine, connected by
// ring.SPSC[Batch] hand-offs, sealing finished blocks onto Blocks for the
// block writer (writer.go) to drain.
type Pipeline struct {
	Name string

	driver Driver
	cfg    Config
	log    *zap.Logger
	stats  *stats.Counters

	slots *pool.Pool[Slot]

	readToDefrag *ring.SPSC[Batch]
	defragToMd1  *ring.SPSC[Batch]
	md1ToMd2     *ring.SPSC[Batch]
	md2ToDedup   *ring.SPSC[Batch]

	// Blocks is this pipeline's sealed-block output ring, polled
	// round-robin by the block writer (C5, writer.go) alongside every
	// other active pipeline's Blocks ring.
	Blocks *ring.SPSC[*block.Block]

	// readDone/defragDone/md1Done/md2Done close when the corresponding
	// stage goroutine returns, always strictly after that stage's own
	// final Enqueue onto its output ring. The next stage downstream waits
	// on this close before treating its input ring as permanently empty
	// (spec §5: "stages exit once their input ring is drained") — see
	// nextBatch in stage_common.go.
	readDone   chan struct{}
	defragDone chan struct{}
	md1Done    chan struct{}
	md2Done    chan struct{}

	doTerminate atomic.Bool
	clock       *timecache.TimeCache
	wg          sync.WaitGroup

	nextBlockID atomic.Uint64
}

// New constructs a Pipeline for driver, named for logging/statistics.
func New(name string, driver Driver, cfg Config, log *zap.Logger, st *stats.Counters) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		Name:         name,
		driver:       driver,
		cfg:          cfg,
		log:          log.With(zap.String("interface", name)),
		stats:        st,
		slots:        NewSlotPool(cfg.PoolCapacity, cfg.Snaplen, pool.Options{PageSize: cfg.PoolPageSize, LocalCacheDepth: cfg.PoolLocalPages}),
		readToDefrag: ring.NewSPSC[Batch](cfg.RingCapacity),
		defragToMd1:  ring.NewSPSC[Batch](cfg.RingCapacity),
		md1ToMd2:     ring.NewSPSC[Batch](cfg.RingCapacity),
		md2ToDedup:   ring.NewSPSC[Batch](cfg.RingCapacity),
		Blocks:       ring.NewSPSC[*block.Block](8),
		clock:        timecache.NewWithResolution(time.Millisecond),
		readDone:     make(chan struct{}),
		defragDone:   make(chan struct{}),
		md1Done:      make(chan struct{}),
		md2Done:      make(chan struct{}),
	}
	return p
}

// Start launches the five pipeline goroutines. It returns immediately;
// cancelling ctx ends only the read stage, and Stop brings all of them
// down in leaves-first order per spec §5: each stage drains its input ring
// to completion, waiting for its immediate upstream to finish first, so no
// batch in flight when Stop is called is ever stranded or leaked.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(5)
	go p.runRead(ctx)
	go p.runDefrag(ctx)
	go p.runMD(ctx, p.defragToMd1, p.md1ToMd2, true, p.defragDone, p.md1Done)
	go p.runMD(ctx, p.md1ToMd2, p.md2ToDedup, false, p.md1Done, p.md2Done)
	go p.runDedup(ctx)
}

// Stop sets the termination flag observed between batches by every stage
// (spec §5's doTerminate) and waits for all five goroutines to exit.
func (p *Pipeline) Stop() {
	p.doTerminate.Store(true)
	p.wg.Wait()
	p.clock.Stop()
}

func (p *Pipeline) terminating() bool { return p.doTerminate.Load() }
