package mcstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkAssignment(t *testing.T) {
	tests := []struct {
		pos   BlockPos
		chunk ChunkPos
		local LocalPos
	}{
		{BlockPos{0, 0, 0}, ChunkPos{0, 0}, LocalPos{0, 64, 0}},
		{BlockPos{15, 0, 15}, ChunkPos{0, 0}, LocalPos{15, 64, 15}},
		{BlockPos{16, 0, 0}, ChunkPos{1, 0}, LocalPos{0, 64, 0}},
		{BlockPos{-1, 0, -1}, ChunkPos{-1, -1}, LocalPos{15, 64, 15}},
		{BlockPos{-16, 0, -17}, ChunkPos{-1, -2}, LocalPos{0, 64, 15}},
		{BlockPos{100, YMin, -100}, ChunkPos{6, -7}, LocalPos{4, 0, 12}},
		{BlockPos{0, YMax, 0}, ChunkPos{0, 0}, LocalPos{0, 383, 0}},
	}
	for _, test := range tests {
		assert.Equal(t, test.chunk, test.pos.Chunk(), "chunk of %v", test.pos)
		assert.Equal(t, test.local, test.pos.Local(), "local of %v", test.pos)
		assert.Equal(t, test.pos, test.pos.Local().Absolute(test.pos.Chunk()), "round trip of %v", test.pos)
	}
}

func TestChunkOrdering(t *testing.T) {
	assert.True(t, ChunkPos{-1, 5}.Less(ChunkPos{0, 0}))
	assert.True(t, ChunkPos{0, 0}.Less(ChunkPos{0, 1}))
	assert.True(t, ChunkPos{0, 1}.Less(ChunkPos{1, 0}))
	assert.False(t, ChunkPos{1, 0}.Less(ChunkPos{1, 0}))
}

// The packed word layout is normative: x in bits 0-3, z in bits 4-7, the Y
// offset in bits 8-23, the NBT flag in bit 24.
func TestLocalPosPacking(t *testing.T) {
	assert.Equal(t, uint32(0x0000_0000), packLocalPos(LocalPos{0, 0, 0}, false))
	assert.Equal(t, uint32(0x0000_00f0), packLocalPos(LocalPos{0, 0, 15}, false))
	assert.Equal(t, uint32(0x0000_000f), packLocalPos(LocalPos{15, 0, 0}, false))
	assert.Equal(t, uint32(0x0001_7fff), packLocalPos(LocalPos{15, 0x17f, 15}, false))
	assert.Equal(t, uint32(0x0100_0000), packLocalPos(LocalPos{0, 0, 0}, true))
	assert.Equal(t, uint32(0x0100_4000), packLocalPos(LocalPos{0, 64, 0}, true))
}

func TestLocalPosUnpacking(t *testing.T) {
	for _, hasNBT := range []bool{false, true} {
		local := LocalPos{X: 7, Y: 211, Z: 13}
		unpacked, flag := unpackLocalPos(packLocalPos(local, hasNBT))
		assert.Equal(t, local, unpacked)
		assert.Equal(t, hasNBT, flag)
	}

	// Reserved high bits are ignored on read.
	unpacked, flag := unpackLocalPos(packLocalPos(LocalPos{1, 2, 3}, false) | 0xfe00_0000)
	assert.Equal(t, LocalPos{1, 2, 3}, unpacked)
	assert.False(t, flag)
}

func TestLocalPosValid(t *testing.T) {
	assert.True(t, LocalPos{15, YMax - YMin, 15}.valid())
	assert.False(t, LocalPos{0, YMax - YMin + 1, 0}.valid())
	assert.False(t, LocalPos{16, 0, 0}.valid())
	assert.False(t, LocalPos{0, 0, 16}.valid())
}
