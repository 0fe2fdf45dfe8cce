package mcstream

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"sort"
	"sync"
)

// DefaultAirBlock is the identifier dropped at ingest unless overridden.
const DefaultAirBlock = "minecraft:air"

// Encoder buffers block placements per chunk and writes them out as an
// MCStream file. It is not safe for concurrent use; callers that add blocks
// from multiple goroutines must serialize externally.
type Encoder struct {
	compression CompressionType
	airID       string
	chunks      map[ChunkPos]*chunkBuilder
	signingKey  ed25519.PrivateKey
	sealed      bool
}

// NewEncoder creates an encoder that will compress each chunk with the given
// codec.
func NewEncoder(compression CompressionType) *Encoder {
	return &Encoder{
		compression: compression,
		airID:       DefaultAirBlock,
		chunks:      make(map[ChunkPos]*chunkBuilder),
	}
}

// SetAirBlock overrides the identifier treated as air and dropped at ingest.
func (enc *Encoder) SetAirBlock(id string) {
	enc.airID = id
}

// SignWith arranges for the file digest to be signed with the given Ed25519
// key. The signature block embeds the corresponding public key.
func (enc *Encoder) SignWith(key ed25519.PrivateKey) {
	enc.signingKey = key
}

// AddBlock buffers one placement. Air blocks are dropped; a Y outside the
// world height fails with ErrCoordinateOutOfRange. Duplicate placements at
// the same position are preserved in insertion order.
func (enc *Encoder) AddBlock(id string, x, y, z int32, nbt []byte) error {
	if enc.sealed {
		return ErrEncoderSealed
	}
	if y < YMin || y > YMax {
		return fmt.Errorf("%w: y=%d not in [%d, %d]", ErrCoordinateOutOfRange, y, YMin, YMax)
	}
	if id == enc.airID {
		return nil
	}
	pos := BlockPos{X: x, Y: y, Z: z}
	enc.builderFor(pos.Chunk()).add(id, pos.Local(), nbt)
	return nil
}

// AddBlocks buffers many placements sharing one identifier, resolving the
// palette index once per run of consecutive positions in the same chunk. An
// empty slice is a no-op.
func (enc *Encoder) AddBlocks(id string, positions []BlockPos, nbt []byte) error {
	if enc.sealed {
		return ErrEncoderSealed
	}
	if id == enc.airID {
		return nil
	}

	var builder *chunkBuilder
	var index uint32
	for _, pos := range positions {
		if pos.Y < YMin || pos.Y > YMax {
			return fmt.Errorf("%w: y=%d not in [%d, %d]", ErrCoordinateOutOfRange, pos.Y, YMin, YMax)
		}
		key := pos.Chunk()
		if builder == nil || builder.pos != key {
			builder = enc.builderFor(key)
			index = builder.palette.index(id)
		}
		builder.addWithIndex(index, pos.Local(), nbt)
	}
	return nil
}

// AddChunk buffers a pre-assembled chunk, replacing anything already buffered
// for that key. Records must reference the given palette and carry in-range
// local positions.
func (enc *Encoder) AddChunk(pos ChunkPos, paletteEntries []string, records []Record) error {
	if enc.sealed {
		return ErrEncoderSealed
	}
	builder := newChunkBuilder(pos)
	for _, entry := range paletteEntries {
		if entry == enc.airID {
			return fmt.Errorf("%w: palette contains the air block", ErrMalformedChunk)
		}
		builder.palette.index(entry)
	}
	for i, record := range records {
		if !record.Local.valid() {
			return fmt.Errorf("%w: record %d", ErrCoordinateOutOfRange, i)
		}
		if record.PaletteIndex >= uint32(len(paletteEntries)) {
			return fmt.Errorf("%w: record %d palette index %d out of range", ErrMalformedChunk, i, record.PaletteIndex)
		}
	}
	builder.records = append(builder.records, records...)
	enc.chunks[pos] = builder
	return nil
}

// Len returns the number of buffered block records.
func (enc *Encoder) Len() int {
	total := 0
	for _, builder := range enc.chunks {
		total += len(builder.records)
	}
	return total
}

// Chunks returns the number of buffered chunks.
func (enc *Encoder) Chunks() int {
	return len(enc.chunks)
}

// Clear drops all buffered blocks.
func (enc *Encoder) Clear() error {
	if enc.sealed {
		return ErrEncoderSealed
	}
	enc.chunks = make(map[ChunkPos]*chunkBuilder)
	return nil
}

func (enc *Encoder) builderFor(key ChunkPos) *chunkBuilder {
	builder, ok := enc.chunks[key]
	if !ok {
		builder = newChunkBuilder(key)
		enc.chunks[key] = builder
	}
	return builder
}

// sortedKeys returns the buffered chunk keys in the normative on-disk order.
func (enc *Encoder) sortedKeys() []ChunkPos {
	keys := make([]ChunkPos, 0, len(enc.chunks))
	for key := range enc.chunks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Less(keys[j])
	})
	return keys
}

// WriteToFile writes the encoded file to path, creating or truncating it.
func (enc *Encoder) WriteToFile(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()
	return enc.WriteTo(file)
}

// WriteTo encodes every buffered chunk and writes the complete file to w.
// The encoder is sealed once writing starts: later mutation fails with
// ErrEncoderSealed. Refuses to emit a file with zero chunks.
func (enc *Encoder) WriteTo(w io.Writer) error {
	if len(enc.chunks) == 0 {
		return ErrEmptyInput
	}
	enc.sealed = true
	writer := &fileWriter{encoder: enc, out: w}
	return writer.writeFile()
}

type fileWriter struct {
	encoder *Encoder
	out     io.Writer
}

func (w *fileWriter) writeFile() (err error) {
	keys := w.encoder.sortedKeys()

	compressed, err := w.compressChunks(keys)
	if err != nil {
		return
	}

	entries := make([]IndexEntry, len(keys))
	offset := uint64(headerSize) + uint64(len(keys))*indexEntrySize
	for i, key := range keys {
		if uint64(len(compressed[i])) > math.MaxUint32 {
			return fmt.Errorf("mcstream: compressed chunk %s exceeds 4 GiB", key)
		}
		entries[i] = IndexEntry{
			Chunk:  key,
			Offset: offset,
			Length: uint32(len(compressed[i])),
		}
		offset += uint64(len(compressed[i]))
	}

	// Everything up to the digest flows through the hasher in on-disk order.
	hasher := sha256.New()
	hashed := io.MultiWriter(w.out, hasher)

	signed := w.encoder.signingKey != nil
	if err = writeHeader(hashed, w.encoder.compression, signed, uint32(len(keys))); err != nil {
		return
	}
	if err = writeIndex(hashed, entries); err != nil {
		return
	}
	for _, blob := range compressed {
		if _, err = hashed.Write(blob); err != nil {
			return
		}
	}

	digest := hasher.Sum(nil)
	if _, err = w.out.Write(digest); err != nil {
		return
	}

	if signed {
		signature := signDigest(w.encoder.signingKey, digest)
		_, err = w.out.Write(signature.encode())
	}
	return
}

// compressChunks serializes and compresses every chunk concurrently, one task
// per chunk on a pool sized to the hardware. Each task fills a pre-assigned
// slot, so the emitted order never depends on completion order.
func (w *fileWriter) compressChunks(keys []ChunkPos) ([][]byte, error) {
	results := make([][]byte, len(keys))
	errs := make([]error, len(keys))

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	wg.Add(len(keys))
	for i, key := range keys {
		sem <- struct{}{}
		go func(slot int, builder *chunkBuilder) {
			defer wg.Done()
			defer func() { <-sem }()
			results[slot], errs[slot] = compress(builder.serialize(), w.encoder.compression)
		}(i, w.encoder.chunks[key])
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
