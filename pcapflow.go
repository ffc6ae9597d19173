// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pcapflow ties C1–C8 together into one running instance: per-
// interface capture pipelines, the block writer, the block store queue,
// the optional mirror sender/receiver, and the dispatch core. It replaces
// the global pcap handles and buffer controls spec §9 calls out with a
// single explicit *Core value, constructed once and passed by reference —
// no package-level state anywhere in this module.
package pcapflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/blockstore"
	"code.hybscloud.com/pcapflow/internal/capture"
	"code.hybscloud.com/pcapflow/internal/config"
	"code.hybscloud.com/pcapflow/internal/dispatch"
	"code.hybscloud.com/pcapflow/internal/mirror"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// Processor is re-exported from internal/dispatch so callers embedding
// this module never need to import an internal package directly.
type Processor = dispatch.Processor

// Driver is re-exported from internal/capture for the same reason; a
// caller wiring in a real NIC implements this against their own capture
// library and passes instances to New via Interfaces.
type Driver = capture.Driver

// Core is the single explicit context object holding every constructed
// component of one running instance (spec §9's replacement for global pcap
// handles and buffer controls).
type Core struct {
	cfg config.Config
	log *zap.Logger
	st  *stats.Counters

	pipelines []*capture.Pipeline
	writer    *capture.Writer
	store     *blockstore.Queue
	dispatch  *dispatch.Dispatcher

	sender   *mirror.Sender
	receiver *mirror.Receiver
}

// New constructs a Core from cfg. drivers must supply exactly one
// capture.Driver per entry in cfg.Interfaces, in the same order, unless
// cfg.MirrorDirection is MirrorRecv, in which case drivers may be empty
// (the receiver is the only packet source).
func New(cfg config.Config, drivers []capture.Driver, proc Processor, log *zap.Logger) (*Core, error) {
	if cfg.MirrorDirection != config.MirrorRecv && len(drivers) != len(cfg.Interfaces) {
		return nil, fmt.Errorf("pcapflow: %d interfaces configured but %d drivers supplied", len(cfg.Interfaces), len(drivers))
	}

	st := &stats.Counters{}

	store, err := blockstore.NewQueue(blockstore.Config{
		MemoryCeilingBytes: cfg.BlockMemoryCeilingBytes,
		DiskSpillEnabled:   cfg.DiskSpillEnabled,
		DiskSpillFolder:    cfg.DiskSpillFolder,
		DiskFreeMinBytes:   cfg.DiskFreeMinBytes,
		FileStoreMaxBytes:  cfg.FileStoreMaxBytes,
		FileStoreMaxAge:    cfg.FileStoreMaxAge,
	}, log, st)
	if err != nil {
		return nil, fmt.Errorf("pcapflow: constructing block store: %w", err)
	}

	c := &Core{cfg: cfg, log: log, st: st, store: store}

	for i, iface := range cfg.Interfaces {
		pc := capture.Config{
			Snaplen:        firstPositive(iface.Snaplen, cfg.Snaplen),
			RingCapacity:   cfg.RingCapacityPerStage,
			PoolPageSize:   cfg.PacketPoolPageSize,
			PoolLocalPages: cfg.PacketPoolLocalPages,
			DedupEnabled:   cfg.DedupEnabled,
			DefragEnabled:  cfg.DefragEnabled,
			Block: block.Options{
				MaxBytes: int64(cfg.BlockMaxBytes),
				MaxCount: cfg.BlockMaxCount,
				Compress: cfg.BlockCompress,
			},
		}
		p := capture.New(iface.Name, drivers[i], pc, log, st)
		c.pipelines = append(c.pipelines, p)
	}

	if len(c.pipelines) > 0 {
		c.writer = capture.NewWriter(c.pipelines, store, log)
	}

	if cfg.MirrorDirection == config.MirrorSend {
		c.sender = mirror.NewSender(cfg.MirrorEndpoint, store, mirror.BackoffConfig{}, log, st)
	}
	if cfg.MirrorDirection == config.MirrorRecv {
		c.receiver = mirror.NewReceiver(cfg.MirrorEndpoint, store, log, st)
	}

	if cfg.MirrorDirection != config.MirrorSend {
		c.dispatch = dispatch.New(store, proc, dispatch.Config{
			Window: cfg.DispatchWindow,
			DltMax: cfg.DltMax,
		}, log, st)
	}

	return c, nil
}

// Start launches every component in dependency order: capture pipelines
// first (the leaves), then the writer, then the mirror transport, then
// dispatch last — the same leaves-first order Stop uses to shut down.
func (c *Core) Start(ctx context.Context) error {
	for _, p := range c.pipelines {
		p.Start(ctx)
	}
	if c.writer != nil {
		c.writer.Start(ctx)
	}
	if c.sender != nil {
		c.sender.Start(ctx)
	}
	if c.receiver != nil {
		if err := c.receiver.Start(ctx); err != nil {
			return fmt.Errorf("pcapflow: starting mirror receiver: %w", err)
		}
	}
	if c.dispatch != nil {
		c.dispatch.Start(ctx)
	}
	return nil
}

// Stop joins every component leaves-first (spec §5: "the orchestrator
// joins threads in reverse dependency order, leaves first: read → defrag →
// … → dispatch last"). Capture pipelines and the mirror receiver are
// producers into the block store and stop first; whichever final
// consumer exists — the mirror sender or the dispatch core — stops last
// so it can drain whatever the producers queued before exiting.
func (c *Core) Stop() {
	for _, p := range c.pipelines {
		p.Stop()
	}
	if c.writer != nil {
		c.writer.Stop()
	}
	if c.receiver != nil {
		c.receiver.Stop()
	}
	if c.sender != nil {
		c.sender.Stop()
	}
	if c.dispatch != nil {
		c.dispatch.Stop()
	}
	c.store.Close()
}

// Stats returns a point-in-time snapshot of every counter this instance
// has accumulated.
func (c *Core) Stats() stats.Snapshot {
	return c.st.Snapshot()
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
