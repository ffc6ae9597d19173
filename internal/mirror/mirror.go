// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mirror implements the mirror transport (C7, spec §4.7/§6): one
// side sends sealed blocks over TCP to a peer using internal/blockcodec's
// self-delimited framing, the other accepts connections and feeds decoded
// blocks into a local sink exactly as if they had been captured locally.
package mirror

import (
	"time"

	"code.hybscloud.com/pcapflow/internal/block"
)

// Source is whatever a Sender drains blocks from — normally
// blockstore.Queue. Kept as an interface for the same reason capture.Writer
// takes a BlockSink: this package should not need to know the queue's
// concrete type.
type Source interface {
	Pop() (*block.Block, bool)
}

// Sink is whatever a Receiver hands decoded blocks to.
type Sink interface {
	Push(*block.Block) error
}

// BackoffConfig bounds the sender's reconnect delay: it starts at Floor,
// doubles on every failed dial, and never exceeds Ceiling — §6's "backoff
// with a floor of at least one second" requirement.
type BackoffConfig struct {
	Floor   time.Duration
	Ceiling time.Duration
}

func (b BackoffConfig) withDefaults() BackoffConfig {
	if b.Floor <= 0 {
		b.Floor = time.Second
	}
	if b.Ceiling <= 0 {
		b.Ceiling = 30 * time.Second
	}
	return b
}
