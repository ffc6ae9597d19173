// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mirror

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/blockcodec"
	"code.hybscloud.com/pcapflow/internal/ring"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// Sender drains blocks from a Source and streams them to one TCP peer,
// reconnecting with exponential backoff whenever the connection drops
// (spec §6: mirror sender keeps exactly one live connection to its
// configured endpoint).
type Sender struct {
	endpoint string
	source   Source
	backoff  BackoffConfig
	log      *zap.Logger
	st       *stats.Counters

	doTerminate atomic.Bool
	wg          sync.WaitGroup
}

// NewSender constructs a Sender for endpoint, draining source.
func NewSender(endpoint string, source Source, backoff BackoffConfig, log *zap.Logger, st *stats.Counters) *Sender {
	return &Sender{
		endpoint: endpoint,
		source:   source,
		backoff:  backoff.withDefaults(),
		log:      log.With(zap.String("mirror_endpoint", endpoint)),
		st:       st,
	}
}

// Start launches the sender's connection-and-send loop.
func (s *Sender) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals termination and waits for the sender goroutine to exit.
func (s *Sender) Stop() {
	s.doTerminate.Store(true)
	s.wg.Wait()
}

func (s *Sender) run(ctx context.Context) {
	defer s.wg.Done()
	delay := s.backoff.Floor

	for !s.doTerminate.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.Dial("tcp", s.endpoint)
		if err != nil {
			s.st.MirrorConnect.Add(1)
			s.log.Warn("mirror dial failed, backing off", zap.Error(err), zap.Duration("delay", delay))
			if !s.sleep(ctx, delay) {
				return
			}
			delay *= 2
			if delay > s.backoff.Ceiling {
				delay = s.backoff.Ceiling
			}
			continue
		}

		delay = s.backoff.Floor
		s.drain(ctx, conn)
		_ = conn.Close()
		if s.doTerminate.Load() {
			return
		}
		if !s.sleep(ctx, delay) {
			return
		}
	}
}

// drain streams blocks to conn until it errors, ctx is cancelled, or
// termination is requested; on any of those it returns so run can decide
// whether to reconnect.
func (s *Sender) drain(ctx context.Context, conn net.Conn) {
	var bo ring.Backoff
	for !s.doTerminate.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, ok := s.source.Pop()
		if !ok {
			bo.Wait()
			continue
		}
		bo.Reset()

		if err := blockcodec.Encode(conn, blk); err != nil {
			s.st.MirrorIO.Add(1)
			s.log.Warn("mirror send failed, will reconnect", zap.Error(err))
			return
		}
	}
}

// sleep waits for delay, ctx cancellation, or termination, reporting
// whether it woke up because delay elapsed (false means the caller should
// give up).
func (s *Sender) sleep(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return !s.doTerminate.Load()
	case <-ctx.Done():
		return false
	}
}
