// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package block

import (
	"github.com/klauspost/compress/zstd"
)

// Options configures a Builder's size and count ceilings and compression.
// The block max-age is not a Builder option: the pipeline's dedup stage
// seals stale blocks on its own timer (capture.Config.BlockMaxAge).
type Options struct {
	// MaxBytes is the uncompressed payload size ceiling. Append returns
	// ErrFull once adding another packet would exceed it.
	MaxBytes int64
	// MaxCount caps the number of packets per block, independent of size.
	MaxCount int
	// Compress enables zstd compression of the payload on Seal.
	Compress bool
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = 4 << 20
	}
	if o.MaxCount <= 0 {
		o.MaxCount = 8192
	}
	return o
}

// Builder accumulates processed packets into a Block, sealing it once full
// or explicitly closed out by its caller on a staleness timer (spec §4.3).
// Not safe for concurrent use — exactly one goroutine (the dedup stage of
// one interface pipeline) appends to a given Builder.
type Builder struct {
	opts    Options
	id      uint64
	headers []PacketHeader
	payload []byte
	minTS   int64
	maxTS   int64
	sealed  bool
	dirty   bool
}

// NewBuilder starts a fresh, empty Block with the given id.
func NewBuilder(id uint64, opts Options) *Builder {
	return &Builder{opts: opts.withDefaults(), id: id}
}

// Append adds one packet to the block. Returns ErrFull if the block has no
// room left for it (caller should Seal and start a new Builder with this
// same packet); ErrSealed if called after Seal.
func (b *Builder) Append(hdr PacketHeader, payload []byte) error {
	if b.sealed {
		return ErrSealed
	}
	if len(b.headers) >= b.opts.MaxCount {
		return ErrFull
	}
	if int64(len(b.payload))+int64(len(payload)) > b.opts.MaxBytes {
		return ErrFull
	}

	hdr.CapLen = uint32(len(payload))
	b.headers = append(b.headers, hdr)
	b.payload = append(b.payload, payload...)

	if len(b.headers) == 1 {
		b.minTS, b.maxTS = hdr.TimestampUS, hdr.TimestampUS
	} else {
		if hdr.TimestampUS < b.minTS {
			b.minTS = hdr.TimestampUS
		}
		if hdr.TimestampUS > b.maxTS {
			b.maxTS = hdr.TimestampUS
		}
	}
	b.dirty = true
	return nil
}

// Count reports packets appended so far.
func (b *Builder) Count() int { return len(b.headers) }

// Size reports uncompressed bytes appended so far.
func (b *Builder) Size() int64 { return int64(len(b.payload)) }

// Seal finalizes the block: no further Append calls are permitted, and
// Count/Size/MinTS/MaxTS become immutable per spec §3. If Options.Compress
// is set, the payload is replaced by its zstd-compressed form and the
// uncompressed bytes are dropped, satisfying "never both partially".
func (b *Builder) Seal() *Block {
	blk := &Block{
		ID:      b.id,
		Headers: b.headers,
		Payload: b.payload,
		Count:   len(b.headers),
		Size:    int64(len(b.payload)),
		MinTS:   b.minTS,
		MaxTS:   b.maxTS,
		Sealed:  true,
		Dirty:   false,
	}

	if b.opts.Compress && len(b.payload) > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err == nil {
			compressed := enc.EncodeAll(b.payload, nil)
			_ = enc.Close()
			blk.Compressed = compressed
			blk.Payload = nil
			if len(compressed) > 0 {
				blk.CompressionRatio = float64(blk.Size) / float64(len(compressed))
			}
		}
	}
	if blk.CompressionRatio == 0 {
		blk.CompressionRatio = 1
	}

	b.sealed = true
	return blk
}

// Sealed reports whether Seal has already run.
func (b *Builder) Sealed() bool { return b.sealed }

// Dirty reports whether packets have been appended since construction.
func (b *Builder) Dirty() bool { return b.dirty }

// CompressedSize decodes nothing; it reports the size a fully zstd-encoded
// payload would take right now, for staleness/statistics decisions made
// before Seal actually runs (spec §4.3: "the codec reports the compression
// ratio for statistics").
func (b *Builder) CompressedSize() int64 {
	if len(b.payload) == 0 {
		return 0
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return int64(len(b.payload))
	}
	defer enc.Close()
	return int64(len(enc.EncodeAll(b.payload, nil)))
}

// Decompress returns b's packet payload, inflating Compressed if Payload
// was dropped at Seal time.
func Decompress(b *Block) ([]byte, error) {
	if b.Payload != nil {
		return b.Payload, nil
	}
	if len(b.Compressed) == 0 {
		return nil, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b.Compressed, nil)
}
