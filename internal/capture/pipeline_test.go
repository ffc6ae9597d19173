// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// buildIPv4Fragments splits payload into n fragments of an IPv4 datagram
// carrying id as its IP identification field, each fragOffset a multiple of
// 8 bytes as IPv4 requires.
func buildIPv4Fragments(id uint16, payload []byte, fragSize int) [][]byte {
	var frags [][]byte
	for off := 0; off < len(payload); off += fragSize {
		end := off + fragSize
		if end > len(payload) {
			end = len(payload)
		}
		more := end < len(payload)
		frags = append(frags, ipv4Frame(id, off, payload[off:end], more))
	}
	return frags
}

// ipv4Frame builds a minimal 20-byte-header IPv4 datagram carrying body at
// byte offset off within the original datagram.
func ipv4Frame(id uint16, off int, body []byte, more bool) []byte {
	hdr := make([]byte, 20)
	hdr[0] = 0x45 // version 4, IHL 5
	totalLen := 20 + len(body)
	hdr[2] = byte(totalLen >> 8)
	hdr[3] = byte(totalLen)
	hdr[4] = byte(id >> 8)
	hdr[5] = byte(id)
	flagsFrag := uint16(off / 8)
	if more {
		flagsFrag |= 0x2000
	}
	hdr[6] = byte(flagsFrag >> 8)
	hdr[7] = byte(flagsFrag)
	hdr[9] = 17 // UDP, arbitrary
	copy(hdr[12:16], []byte{10, 0, 0, 1})
	copy(hdr[16:20], []byte{10, 0, 0, 2})
	return append(hdr, body...)
}

func TestDefragTableReassemblesOutOfOrderFragments(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 40)
	frags := buildIPv4Fragments(7, body, 16)
	require.Len(t, frags, 3)

	table := newDefragTable(time.Minute)
	now := time.Now()

	// Feed the last fragment first, then the rest out of order: the
	// assembly must not complete until every byte from 0 is contiguous.
	var out []byte
	order := []int{2, 0, 1}
	for _, i := range order {
		info := parseIPv4(frags[i])
		require.False(t, info.malformed)
		require.True(t, info.isFragment())
		if r := table.add(now, info, frags[i]); r != nil {
			out = r
		}
	}

	require.NotNil(t, out, "datagram should be fully reassembled once all fragments arrive")
	require.Equal(t, frags[0][:20], out[:20], "first fragment's header is kept verbatim")
	require.Equal(t, body, out[20:])
}

func TestDefragTablePruneDropsStaleIncompleteAssemblies(t *testing.T) {
	body := bytes.Repeat([]byte{0x11}, 32)
	frags := buildIPv4Fragments(9, body, 16)
	require.Len(t, frags, 2)

	table := newDefragTable(time.Minute)
	info := parseIPv4(frags[0])
	require.Nil(t, table.add(time.Now(), info, frags[0]))
	require.Len(t, table.entries, 1)

	dropped := table.prune(time.Now().Add(2 * time.Minute))
	require.Equal(t, 1, dropped)
	require.Empty(t, table.entries)
}

func TestParseIPv4RejectsMalformedInput(t *testing.T) {
	require.True(t, parseIPv4(nil).malformed)
	require.True(t, parseIPv4([]byte{0x00}).malformed)

	notV4 := make([]byte, 20)
	notV4[0] = 0x55 // version 5
	require.True(t, parseIPv4(notV4).malformed)
}

// TestPipelineReassemblesFragmentedTraffic runs the full five-stage
// pipeline with defrag enabled over a stream containing one fragmented
// datagram and one whole datagram, and checks exactly two sealed packets
// come out with the fragmented one's body intact.
func TestPipelineReassemblesFragmentedTraffic(t *testing.T) {
	defer goleak.VerifyNone(t)

	fragBody := bytes.Repeat([]byte{0xCD}, 48)
	frags := buildIPv4Fragments(42, fragBody, 24)

	whole := ipv4Frame(43, 0, []byte("whole-datagram"), false)

	var wire bytes.Buffer
	for i, f := range frags {
		hdr := Header{TimestampUS: int64(i + 1), WireLen: len(f), CapLen: len(f)}
		require.NoError(t, WritePipeFrame(&wire, hdr, f))
	}
	wholeHdr := Header{TimestampUS: int64(len(frags) + 1), WireLen: len(whole), CapLen: len(whole)}
	require.NoError(t, WritePipeFrame(&wire, wholeHdr, whole))

	driver := NewPipeDriver(bytes.NewReader(wire.Bytes()), 101)
	st := &stats.Counters{}
	cfg := Config{
		RingCapacity:  64,
		PoolPageSize:  8,
		DefragEnabled: true,
		DefragMaxAge:  time.Minute,
		Block:         block.Options{MaxBytes: 1 << 20, MaxCount: 8},
		BlockMaxAge:   50 * time.Millisecond,
	}
	p := New("test0", driver, cfg, zap.NewNop(), st)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Start(ctx)

	var packets int
	deadline := time.Now().Add(5 * time.Second)
	for packets < 2 && time.Now().Before(deadline) {
		blk, err := p.Blocks.Dequeue()
		if err != nil {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		packets += len(blk.Headers)
	}
	require.Equal(t, 2, packets)

	p.Stop()
}
