package mcstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/willf/bitset"
)

// Block is a single decoded placement with absolute world coordinates.
type Block struct {
	ID  string
	Pos BlockPos
	NBT []byte
}

// Record is one block record as stored within a chunk: a palette reference
// and a chunk-local position.
type Record struct {
	PaletteIndex uint32
	Local        LocalPos
	NBT          []byte
}

// Chunk is a fully decoded chunk: its palette and block records in the order
// they were inserted at encode time.
type Chunk struct {
	Pos     ChunkPos
	Palette []string
	Records []Record

	// Size of the uncompressed payload in bytes.
	Size int

	referenced *bitset.BitSet
}

// Blocks resolves every record to an absolute-coordinate placement.
func (c *Chunk) Blocks() []Block {
	blocks := make([]Block, len(c.Records))
	for i, record := range c.Records {
		blocks[i] = Block{
			ID:  c.Palette[record.PaletteIndex],
			Pos: record.Local.Absolute(c.Pos),
			NBT: record.NBT,
		}
	}
	return blocks
}

// PaletteFullyReferenced reports whether every palette entry is used by at
// least one record. A well-formed encoder never emits an unused entry.
func (c *Chunk) PaletteFullyReferenced() bool {
	return c.referenced == nil || c.referenced.Count() == uint(len(c.Palette))
}

// UnreferencedPaletteEntries returns the indices of palette entries no record
// points at.
func (c *Chunk) UnreferencedPaletteEntries() []uint {
	var unused []uint
	if c.referenced == nil {
		return unused
	}
	for i := uint(0); i < uint(len(c.Palette)); i++ {
		if !c.referenced.Test(i) {
			unused = append(unused, i)
		}
	}
	return unused
}

// chunkBuilder accumulates the blocks placed into one chunk before
// serialization.
type chunkBuilder struct {
	pos     ChunkPos
	palette *palette
	records []Record
}

func newChunkBuilder(pos ChunkPos) *chunkBuilder {
	return &chunkBuilder{pos: pos, palette: newPalette()}
}

func (b *chunkBuilder) add(id string, local LocalPos, nbt []byte) {
	b.records = append(b.records, Record{
		PaletteIndex: b.palette.index(id),
		Local:        local,
		NBT:          nbt,
	})
}

// addWithIndex appends a record whose palette index was resolved up front, so
// batch inserts pay the palette lookup once per run of positions in a chunk.
func (b *chunkBuilder) addWithIndex(index uint32, local LocalPos, nbt []byte) {
	b.records = append(b.records, Record{PaletteIndex: index, Local: local, NBT: nbt})
}

// serialize produces the chunk's uncompressed on-disk form:
//
//	palette_len:varuint
//	palette_len x (len:varuint + utf8 bytes)
//	block_count:varuint
//	block_count x { packed:u32le, palette_index:varuint, [nbt_len:varuint, nbt] }
func (b *chunkBuilder) serialize() []byte {
	out := appendUvarint(nil, uint64(b.palette.len()))
	for _, entry := range b.palette.entries {
		out = appendString(out, entry)
	}
	out = appendUvarint(out, uint64(len(b.records)))
	for _, record := range b.records {
		var packed [4]byte
		binary.LittleEndian.PutUint32(packed[:], packLocalPos(record.Local, record.NBT != nil))
		out = append(out, packed[:]...)
		out = appendUvarint(out, uint64(record.PaletteIndex))
		if record.NBT != nil {
			out = appendUvarint(out, uint64(len(record.NBT)))
			out = append(out, record.NBT...)
		}
	}
	return out
}

// parseChunk decodes an uncompressed chunk payload from an untrusted file.
// Every structural field is bounds-checked against the payload size before it
// drives an allocation.
func parseChunk(data []byte, pos ChunkPos, airID string) (*Chunk, error) {
	in := bytes.NewReader(data)

	paletteLen, err := readUvarint(in)
	if err != nil {
		return nil, err
	}
	// Each palette entry takes at least one length byte.
	if paletteLen > uint64(len(data)) {
		return nil, fmt.Errorf("%w: palette length %d exceeds payload", ErrMalformedChunk, paletteLen)
	}

	chunk := &Chunk{
		Pos:        pos,
		Palette:    make([]string, 0, paletteLen),
		Size:       len(data),
		referenced: bitset.New(uint(paletteLen)),
	}
	for i := uint64(0); i < paletteLen; i++ {
		entry, err := readString(in, in, len(data))
		if err != nil {
			return nil, err
		}
		if entry == airID {
			return nil, fmt.Errorf("%w: palette contains the air block", ErrMalformedChunk)
		}
		chunk.Palette = append(chunk.Palette, entry)
	}

	blockCount, err := readUvarint(in)
	if err != nil {
		return nil, err
	}
	// A record is at least five bytes: the packed word plus one index byte.
	if blockCount > uint64(in.Len())/5+1 {
		return nil, fmt.Errorf("%w: block count %d exceeds payload", ErrMalformedChunk, blockCount)
	}

	chunk.Records = make([]Record, 0, blockCount)
	for i := uint64(0); i < blockCount; i++ {
		var rawPacked [4]byte
		if _, err := io.ReadFull(in, rawPacked[:]); err != nil {
			return nil, fmt.Errorf("%w: record %d cut short", ErrMalformedChunk, i)
		}
		local, hasNBT := unpackLocalPos(binary.LittleEndian.Uint32(rawPacked[:]))
		if !local.valid() {
			return nil, fmt.Errorf("%w: record %d local position out of range", ErrMalformedChunk, i)
		}

		index, err := readUvarint(in)
		if err != nil {
			return nil, err
		}
		if index >= paletteLen {
			return nil, fmt.Errorf("%w: record %d palette index %d out of range", ErrMalformedChunk, i, index)
		}
		chunk.referenced.Set(uint(index))

		var nbt []byte
		if hasNBT {
			nbtLen, err := readUvarint(in)
			if err != nil {
				return nil, err
			}
			if nbtLen > uint64(in.Len()) {
				return nil, fmt.Errorf("%w: record %d NBT length %d exceeds payload", ErrMalformedChunk, i, nbtLen)
			}
			nbt = make([]byte, nbtLen)
			if _, err := io.ReadFull(in, nbt); err != nil {
				return nil, fmt.Errorf("%w: record %d NBT cut short", ErrMalformedChunk, i)
			}
		}

		chunk.Records = append(chunk.Records, Record{
			PaletteIndex: uint32(index),
			Local:        local,
			NBT:          nbt,
		})
	}

	if in.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after records", ErrMalformedChunk, in.Len())
	}
	return chunk, nil
}
