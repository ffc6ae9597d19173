// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package blockcodec implements the block wire format from spec §4.3/§6:
// a self-delimited byte-stream serialization of a block.Block, used both
// for on-disk spill (internal/blockstore) and mirror transport
// (internal/mirror). One frame on the wire is exactly one block.
//
// Framing is code.hybscloud.com/framer's length-prefixed stream mode, which
// already satisfies spec §6's "self-delimited frames on a byte stream"
// contract; this package only defines the block's own field layout inside
// each frame.
package blockcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"code.hybscloud.com/framer"
	"code.hybscloud.com/pcapflow/internal/block"
)

// ErrCorrupt reports a block that failed its integrity checks on decode,
// mapping to spec §7's Corrupt error kind.
var ErrCorrupt = errors.New("blockcodec: corrupt block frame")

const magic = uint32(0x70636170) // "pcap"

// version lets a future field addition stay readable by this decoder; bump
// only on a breaking layout change.
const version = uint8(1)

// DefaultMaxFrame bounds a single decoded frame, matching the largest block
// the core ever seals (Options.MaxBytes) plus header/compression overhead.
// Callers with a smaller configured block size should pass their own
// ReadLimit via WithMaxFrame.
const DefaultMaxFrame = 16 << 20

// Encode writes b as one self-delimited frame to w.
func Encode(w io.Writer, b *block.Block) error {
	var buf bytes.Buffer
	if err := marshal(&buf, b); err != nil {
		return err
	}

	fw := framer.NewWriter(w, framer.WithBlock())
	_, err := fw.Write(buf.Bytes())
	return err
}

// initialDecodeBufSize is the starting guess for a frame's payload size.
// Most blocks (mirror traffic, steady-state spill) are well under this; the
// rare oversized frame grows the buffer instead of everyone paying for
// DefaultMaxFrame up front.
const initialDecodeBufSize = 256 << 10

// Decode reads one self-delimited frame from r and parses it into a Block.
// Returns io.EOF when r has no more frames.
//
// The read buffer starts small and only grows (doubling, capped at
// o.maxFrame) when framer reports io.ErrShortBuffer; framer preserves its
// parsed header state across such retries, so growing never re-reads the
// frame's header. This keeps the common case from allocating a full
// DefaultMaxFrame buffer per call.
func Decode(r io.Reader, opts ...Option) (*block.Block, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	fr := framer.NewReader(r, framer.WithReadLimit(int(o.maxFrame)), framer.WithBlock())

	size := int64(initialDecodeBufSize)
	if size > o.maxFrame {
		size = o.maxFrame
	}
	for {
		buf := make([]byte, size)
		n, err := fr.Read(buf)
		if err == nil {
			return unmarshal(buf[:n])
		}
		if errors.Is(err, io.ErrShortBuffer) && size < o.maxFrame {
			size *= 2
			if size > o.maxFrame {
				size = o.maxFrame
			}
			continue
		}
		return nil, err
	}
}

// Option configures Decode's frame-size ceiling.
type Option func(*options)

type options struct {
	maxFrame int64
}

func defaultOptions() options {
	return options{maxFrame: DefaultMaxFrame}
}

// WithMaxFrame overrides DefaultMaxFrame.
func WithMaxFrame(n int64) Option {
	return func(o *options) { o.maxFrame = n }
}

func marshal(buf *bytes.Buffer, b *block.Block) error {
	var hdr [4 + 1 + 8 + 4 + 8 + 8 + 4 + 1]byte
	off := 0
	binary.BigEndian.PutUint32(hdr[off:], magic)
	off += 4
	hdr[off] = version
	off++
	binary.BigEndian.PutUint64(hdr[off:], b.ID)
	off += 8
	binary.BigEndian.PutUint32(hdr[off:], uint32(b.Count))
	off += 4
	binary.BigEndian.PutUint64(hdr[off:], uint64(b.MinTS))
	off += 8
	binary.BigEndian.PutUint64(hdr[off:], uint64(b.MaxTS))
	off += 8
	binary.BigEndian.PutUint32(hdr[off:], uint32(len(b.Headers)))
	off += 4
	compressed := b.Compressed != nil
	if compressed {
		hdr[off] = 1
	}
	buf.Write(hdr[:])

	for _, h := range b.Headers {
		var ph [8 + 4 + 4 + 2 + 2]byte
		o := 0
		binary.BigEndian.PutUint64(ph[o:], uint64(h.TimestampUS))
		o += 8
		binary.BigEndian.PutUint32(ph[o:], h.WireLen)
		o += 4
		binary.BigEndian.PutUint32(ph[o:], h.CapLen)
		o += 4
		binary.BigEndian.PutUint16(ph[o:], h.DLT)
		o += 2
		binary.BigEndian.PutUint16(ph[o:], h.LinkOffset)
		buf.Write(ph[:])
	}

	payload := b.Compressed
	if !compressed {
		payload = b.Payload
	}
	var plen [8]byte
	binary.BigEndian.PutUint64(plen[:], uint64(len(payload)))
	buf.Write(plen[:])
	buf.Write(payload)
	return nil
}

func unmarshal(data []byte) (*block.Block, error) {
	const fixedHdr = 4 + 1 + 8 + 4 + 8 + 8 + 4 + 1
	if len(data) < fixedHdr {
		return nil, ErrCorrupt
	}
	off := 0
	if binary.BigEndian.Uint32(data[off:]) != magic {
		return nil, ErrCorrupt
	}
	off += 4
	if data[off] != version {
		return nil, ErrCorrupt
	}
	off++
	b := &block.Block{Sealed: true}
	b.ID = binary.BigEndian.Uint64(data[off:])
	off += 8
	b.Count = int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	b.MinTS = int64(binary.BigEndian.Uint64(data[off:]))
	off += 8
	b.MaxTS = int64(binary.BigEndian.Uint64(data[off:]))
	off += 8
	numHeaders := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	compressed := data[off] == 1
	off++

	if numHeaders != b.Count {
		return nil, ErrCorrupt
	}

	const perHeader = 8 + 4 + 4 + 2 + 2
	b.Headers = make([]block.PacketHeader, numHeaders)
	for i := 0; i < numHeaders; i++ {
		if len(data) < off+perHeader {
			return nil, ErrCorrupt
		}
		h := &b.Headers[i]
		h.TimestampUS = int64(binary.BigEndian.Uint64(data[off:]))
		off += 8
		h.WireLen = binary.BigEndian.Uint32(data[off:])
		off += 4
		h.CapLen = binary.BigEndian.Uint32(data[off:])
		off += 4
		h.DLT = binary.BigEndian.Uint16(data[off:])
		off += 2
		h.LinkOffset = binary.BigEndian.Uint16(data[off:])
		off += 2
	}

	if len(data) < off+8 {
		return nil, ErrCorrupt
	}
	plen := binary.BigEndian.Uint64(data[off:])
	off += 8
	if uint64(len(data)-off) != plen {
		return nil, ErrCorrupt
	}
	payload := data[off : off+int(plen)]

	var size int64
	for _, h := range b.Headers {
		size += int64(h.CapLen)
	}
	b.Size = size

	if compressed {
		b.Compressed = append([]byte(nil), payload...)
	} else {
		b.Payload = append([]byte(nil), payload...)
	}
	return b, nil
}
