// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command pcapflowd wires pcapflow.Core to replay files on disk (standing
// in for live NICs, per internal/capture's design note on libpcap bindings)
// and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow"
	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/capture"
	"code.hybscloud.com/pcapflow/internal/config"
)

// cli is pcapflowd's flag surface (spec §1: "CLI flag parsing" is an
// external collaborator the core does not specify; this binary is that
// collaborator).
type cli struct {
	Config string   `help:"Path to the YAML configuration file." required:"" type:"path"`
	Replay []string `help:"Per-interface replay file in PipeDriver wire format, one per --config interface entry, in order." name:"replay"`
	Debug  bool     `help:"Enable debug-level logging."`
}

// loggingProcessor is the default downstream consumer: it logs a summary
// line per packet rather than requiring an embedder to supply one, so the
// daemon is runnable standalone.
type loggingProcessor struct {
	log *zap.Logger
}

func (p *loggingProcessor) OnPacket(hdr block.PacketHeader, payload []byte, _ *block.Block, index int, dlt uint16, sensorID string) {
	p.log.Debug("packet dispatched",
		zap.Int64("ts_us", hdr.TimestampUS),
		zap.Int("index", index),
		zap.Uint16("dlt", dlt),
		zap.Int("cap_len", len(payload)),
		zap.String("sensor_id", sensorID),
	)
}

func main() {
	var c cli
	kctx := kong.Parse(&c, kong.Description("pcapflow capture, dedup, and dispatch daemon"))

	log := newLogger(c.Debug)
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(c.Config)
	if err != nil {
		kctx.FatalIfErrorf(fmt.Errorf("loading config %s: %w", c.Config, err))
	}

	if cfg.MirrorDirection != config.MirrorRecv && len(c.Replay) != len(cfg.Interfaces) {
		kctx.Fatalf("have %d interfaces in config but %d --replay files", len(cfg.Interfaces), len(c.Replay))
	}

	drivers, closers, err := openReplayDrivers(c.Replay, cfg)
	if err != nil {
		kctx.FatalIfErrorf(err)
	}
	defer func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}()

	core, err := pcapflow.New(cfg, drivers, &loggingProcessor{log: log}, log)
	if err != nil {
		kctx.FatalIfErrorf(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := core.Start(ctx); err != nil {
		kctx.FatalIfErrorf(err)
	}

	<-ctx.Done()
	log.Info("shutting down")
	core.Stop()

	snap := core.Stats()
	log.Info("final counters",
		zap.Int64("packets_delivered", snap.PacketsDelivered),
		zap.Int64("blocks_spilled", snap.BlocksSpilled),
		zap.Int64("blocks_drained", snap.BlocksDrained),
	)
}

// dltEthernet is libpcap's DLT_EN10MB, the default link type for the
// synthetic Ethernet replay files this daemon reads.
const dltEthernet = uint16(1)

func openReplayDrivers(paths []string, _ config.Config) ([]capture.Driver, []*os.File, error) {
	drivers := make([]capture.Driver, 0, len(paths))
	files := make([]*os.File, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			for _, prev := range files {
				_ = prev.Close()
			}
			return nil, nil, fmt.Errorf("opening replay file %s: %w", path, err)
		}
		files = append(files, f)
		drivers = append(drivers, capture.NewPipeDriver(f, dltEthernet))
	}
	return drivers, files, nil
}

func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
