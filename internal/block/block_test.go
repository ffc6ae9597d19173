// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package block_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/pcapflow/internal/block"
)

func TestBuilderAppendAndSeal(t *testing.T) {
	b := block.NewBuilder(1, block.Options{MaxBytes: 1 << 20, MaxCount: 10})

	for i := 0; i < 3; i++ {
		err := b.Append(block.PacketHeader{TimestampUS: int64(100 + i)}, []byte("abc"))
		require.NoError(t, err)
	}

	require.Equal(t, 3, b.Count())
	require.False(t, b.Sealed())

	sealed := b.Seal()
	require.True(t, sealed.Sealed)
	require.Equal(t, 3, sealed.Count)
	require.Equal(t, int64(100), sealed.MinTS)
	require.Equal(t, int64(102), sealed.MaxTS)
	require.Equal(t, "abcabcabc", string(sealed.Payload))
	require.Nil(t, sealed.Compressed)

	err := b.Append(block.PacketHeader{}, []byte("x"))
	require.ErrorIs(t, err, block.ErrSealed)
}

func TestBuilderFullOnCount(t *testing.T) {
	b := block.NewBuilder(1, block.Options{MaxBytes: 1 << 20, MaxCount: 2})
	require.NoError(t, b.Append(block.PacketHeader{}, []byte("a")))
	require.NoError(t, b.Append(block.PacketHeader{}, []byte("a")))
	require.ErrorIs(t, b.Append(block.PacketHeader{}, []byte("a")), block.ErrFull)
}

func TestBuilderFullOnBytes(t *testing.T) {
	b := block.NewBuilder(1, block.Options{MaxBytes: 4, MaxCount: 100})
	require.NoError(t, b.Append(block.PacketHeader{}, []byte("abcd")))
	require.ErrorIs(t, b.Append(block.PacketHeader{}, []byte("e")), block.ErrFull)
}

func TestBuilderSealCompresses(t *testing.T) {
	b := block.NewBuilder(7, block.Options{MaxBytes: 1 << 20, MaxCount: 10, Compress: true})
	payload := make([]byte, 4096)
	require.NoError(t, b.Append(block.PacketHeader{TimestampUS: 1}, payload))

	sealed := b.Seal()
	require.NotNil(t, sealed.Compressed)
	require.Nil(t, sealed.Payload)
	require.Equal(t, int64(len(payload)), sealed.Size)

	out, err := block.Decompress(sealed)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestOffsetsAndPacket(t *testing.T) {
	headers := []block.PacketHeader{{CapLen: 3}, {CapLen: 5}, {CapLen: 2}}
	offs := block.Offsets(headers)
	require.Equal(t, []int64{0, 3, 8}, offs)

	payload := []byte("abcdefghij")
	_, p1 := block.Packet(headers, payload, 1)
	require.Equal(t, "defgh", string(p1))
}
