// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"encoding/binary"
	"sort"
	"time"
)

// fragKey identifies one IP datagram's fragment set (spec §4.4: "keyed by
// (src, dst, ip-id, protocol)").
type fragKey struct {
	src, dst [4]byte
	id       uint16
	proto    uint8
}

type fragPiece struct {
	offset int
	data   []byte
}

type fragAssembly struct {
	pieces   []fragPiece
	total    int // -1 until the last fragment (MF=0) is seen
	lastSeen time.Time
}

// defragTable reassembles IPv4 fragments (spec §4.4's "defrag" stage).
// Not safe for concurrent use — owned by exactly one stage goroutine.
type defragTable struct {
	entries map[fragKey]*fragAssembly
	maxAge  time.Duration
}

func newDefragTable(maxAge time.Duration) *defragTable {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &defragTable{entries: make(map[fragKey]*fragAssembly), maxAge: maxAge}
}

// ipv4Info is the subset of an IPv4 header defrag needs.
type ipv4Info struct {
	key          fragKey
	fragOffset   int // in bytes
	moreFrags    bool
	headerLen    int
	totalLen     int
	malformed    bool
}

// parseIPv4 extracts fragmentation fields from an IPv4 header starting at
// data[0]. Returns malformed=true if data is too short to be a valid IPv4
// header, matching spec §4.4's "drop malformed fragments without pipeline
// abort."
func parseIPv4(data []byte) ipv4Info {
	if len(data) < 20 {
		return ipv4Info{malformed: true}
	}
	verIHL := data[0]
	if verIHL>>4 != 4 {
		return ipv4Info{malformed: true}
	}
	ihl := int(verIHL&0x0f) * 4
	if ihl < 20 || len(data) < ihl {
		return ipv4Info{malformed: true}
	}
	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	id := binary.BigEndian.Uint16(data[4:6])
	flagsFrag := binary.BigEndian.Uint16(data[6:8])
	moreFrags := flagsFrag&0x2000 != 0
	fragOffset := int(flagsFrag&0x1fff) * 8
	proto := data[9]

	var info ipv4Info
	copy(info.key.src[:], data[12:16])
	copy(info.key.dst[:], data[16:20])
	info.key.id = id
	info.key.proto = proto
	info.fragOffset = fragOffset
	info.moreFrags = moreFrags
	info.headerLen = ihl
	info.totalLen = totalLen
	return info
}

// isFragment reports whether info describes a fragment requiring
// reassembly (offset > 0 or more-fragments set), vs. a whole, unfragmented
// datagram that should pass straight through.
func (info ipv4Info) isFragment() bool {
	return info.fragOffset != 0 || info.moreFrags
}

// add inserts one fragment's payload (header stripped) at its byte offset
// within the reassembled datagram. Returns the fully reassembled payload
// (header of the first fragment plus contiguous body) once every byte from
// 0 up to the known total has arrived, nil otherwise.
func (t *defragTable) add(now time.Time, info ipv4Info, fullDatagram []byte) []byte {
	key := info.key
	asm, ok := t.entries[key]
	if !ok {
		asm = &fragAssembly{total: -1}
		t.entries[key] = asm
	}
	asm.lastSeen = now

	if info.fragOffset == 0 {
		// First fragment: keep its header, body starts at headerLen.
		asm.pieces = append(asm.pieces, fragPiece{offset: 0, data: fullDatagram})
	} else {
		body := fullDatagram[info.headerLen:]
		asm.pieces = append(asm.pieces, fragPiece{offset: info.fragOffset + info.headerLen, data: body})
	}
	if !info.moreFrags {
		asm.total = info.fragOffset + info.headerLen + (len(fullDatagram) - info.headerLen)
		if info.fragOffset == 0 {
			asm.total = len(fullDatagram)
		}
	}

	if asm.total < 0 {
		return nil
	}

	sort.Slice(asm.pieces, func(i, j int) bool { return asm.pieces[i].offset < asm.pieces[j].offset })

	out := make([]byte, 0, asm.total)
	next := 0
	for _, p := range asm.pieces {
		if p.offset != next {
			return nil // gap: not all fragments have arrived yet
		}
		out = append(out, p.data...)
		next = p.offset + len(p.data)
	}
	if next != asm.total {
		return nil
	}

	delete(t.entries, key)
	return out
}

// prune drops fragment sets that have been incomplete for longer than
// maxAge, matching spec §4.4's "pruning runs every configured interval."
func (t *defragTable) prune(now time.Time) int {
	n := 0
	for k, asm := range t.entries {
		if now.Sub(asm.lastSeen) > t.maxAge {
			delete(t.entries, k)
			n++
		}
	}
	return n
}
