// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package block implements the block builder/codec entity from spec §3/§4.3:
// an ordered, append-only container of processed packets that is the unit
// of spill (internal/blockstore), transport (internal/mirror), and dispatch
// (internal/dispatch).
package block

import "errors"

// ErrSealed is returned by Append once a Builder has been sealed.
var ErrSealed = errors.New("block: builder already sealed")

// ErrFull is returned by Append when the block has reached its configured
// size or count ceiling. The caller seals the current block and starts a
// new one; it is not a failure.
var ErrFull = errors.New("block: full")

// PacketHeader is the per-packet metadata carried alongside a packet's raw
// bytes inside a Block, mirroring spec §3's packet-slot fields that survive
// past the capture pipeline (timestamp, lengths, link-layer type, offset).
type PacketHeader struct {
	// TimestampUS is the capture timestamp in microseconds since the Unix
	// epoch, as produced by capture.Slot.
	TimestampUS int64
	// WireLen is the original on-wire length, which may exceed CapLen when
	// snaplen truncated the capture.
	WireLen uint32
	// CapLen is the number of payload bytes actually stored.
	CapLen uint32
	// DLT is the link-layer type id (libpcap's DLT_*) the packet was
	// captured under.
	DLT uint16
	// LinkOffset is the byte offset from the start of Payload to the first
	// byte past the link-layer header, i.e. where IP begins.
	LinkOffset uint16
}

// Block is a sealed, size-bounded container of processed packets: the unit
// of spill, transport, and dispatch (spec §3, "Block").
//
// Once Sealed is true, Count, Size, MinTS, and MaxTS are immutable, and the
// block holds either Payload or Compressed but never both populated at
// once — satisfying spec §3's "never both partially" invariant.
type Block struct {
	// ID is a monotonically assigned identifier, unique within one running
	// core instance.
	ID uint64

	Headers []PacketHeader
	// Payload is the concatenation of each packet's raw bytes in Headers
	// order, offset by the cumulative CapLen of prior packets.
	Payload []byte

	Count int
	Size  int64
	MinTS int64
	MaxTS int64

	Dirty  bool
	Sealed bool

	// Compressed holds the compressed form of Payload once Seal has run it
	// through the configured codec. Nil until sealed, or if compression is
	// disabled (in which case Payload is kept and this stays nil).
	Compressed []byte
	// CompressionRatio is len(Payload)/len(Compressed), reported for
	// statistics per spec §4.3; 1.0 when uncompressed.
	CompressionRatio float64
}

// Packet returns the header and raw payload bytes for packet i out of a
// previously-decompressed payload (see Decompress). Callers that iterate
// every packet in a block should compute offsets once rather than calling
// this repeatedly; internal/dispatch does so via Offsets.
func Packet(headers []PacketHeader, payload []byte, i int) (PacketHeader, []byte) {
	h := headers[i]
	off := int64(0)
	for j := 0; j < i; j++ {
		off += int64(headers[j].CapLen)
	}
	return h, payload[off : off+int64(h.CapLen)]
}

// Offsets returns the cumulative byte offset of each header's payload
// within a decompressed Payload, for O(n) one-pass iteration instead of
// O(n^2) repeated Packet calls.
func Offsets(headers []PacketHeader) []int64 {
	offs := make([]int64, len(headers))
	var off int64
	for i, h := range headers {
		offs[i] = off
		off += int64(h.CapLen)
	}
	return offs
}
