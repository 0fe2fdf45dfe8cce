package mcstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Magic is the fixed eight bytes opening every MCStream file.
const Magic = "MCSTREAM"

// Format version, encoded on disk as a single 16-bit word with the major in
// the high byte. Readers accept any minor revision of a known major.
const (
	VersionMajor = 1
	VersionMinor = 0
)

const (
	headerSize     = 16
	indexEntrySize = 20
	digestSize     = 32
)

const flagSigned = 0x01

// Header is the parsed fixed-size file header.
type Header struct {
	Version     uint16
	Compression CompressionType
	Flags       byte
	ChunkCount  uint32
}

func (h Header) VersionMajor() int { return int(h.Version >> 8) }
func (h Header) VersionMinor() int { return int(h.Version & 0xff) }

// Signed reports whether the file carries a signature block after the digest.
func (h Header) Signed() bool { return h.Flags&flagSigned != 0 }

func versionWord() uint16 {
	return VersionMajor<<8 | VersionMinor
}

func writeHeader(w io.Writer, compression CompressionType, signed bool, chunkCount uint32) error {
	var header struct {
		Magic       [8]byte
		Version     uint16
		Compression byte
		Flags       byte
		ChunkCount  uint32
	}
	copy(header.Magic[:], Magic)
	header.Version = versionWord()
	header.Compression = byte(compression)
	if signed {
		header.Flags = flagSigned
	}
	header.ChunkCount = chunkCount
	return binary.Write(w, binary.LittleEndian, &header)
}

func readHeader(r io.Reader) (h Header, err error) {
	var raw struct {
		Magic       [8]byte
		Version     uint16
		Compression byte
		Flags       byte
		ChunkCount  uint32
	}
	if err = binary.Read(r, binary.LittleEndian, &raw); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = ErrTruncatedFile
		}
		return
	}
	if !bytes.Equal(raw.Magic[:], []byte(Magic)) {
		err = fmt.Errorf("mcstream: bad magic %q", raw.Magic)
		return
	}
	if raw.Version>>8 != VersionMajor {
		err = fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, raw.Version>>8, raw.Version&0xff)
		return
	}
	if !CompressionType(raw.Compression).valid() {
		err = fmt.Errorf("%w: %d", ErrUnsupportedCompression, raw.Compression)
		return
	}
	h = Header{
		Version:     raw.Version,
		Compression: CompressionType(raw.Compression),
		Flags:       raw.Flags,
		ChunkCount:  raw.ChunkCount,
	}
	return
}

// IndexEntry locates one compressed chunk blob inside the file.
type IndexEntry struct {
	Chunk  ChunkPos
	Offset uint64
	Length uint32
}

func writeIndex(w io.Writer, entries []IndexEntry) error {
	for _, entry := range entries {
		var raw struct {
			X      int32
			Z      int32
			Offset uint64
			Length uint32
		}
		raw.X = entry.Chunk.X
		raw.Z = entry.Chunk.Z
		raw.Offset = entry.Offset
		raw.Length = entry.Length
		if err := binary.Write(w, binary.LittleEndian, &raw); err != nil {
			return err
		}
	}
	return nil
}

func readIndex(r io.Reader, count uint32) ([]IndexEntry, error) {
	entries := make([]IndexEntry, count)
	for i := range entries {
		var raw struct {
			X      int32
			Z      int32
			Offset uint64
			Length uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrTruncatedFile
			}
			return nil, err
		}
		entries[i] = IndexEntry{
			Chunk:  ChunkPos{X: raw.X, Z: raw.Z},
			Offset: raw.Offset,
			Length: raw.Length,
		}
	}
	return entries, nil
}

// validateIndex checks every entry against the file geometry: blobs must sit
// past the header and index, fit ahead of the digest, and not overlap each
// other. All violations are reported together. Returns the end of the chunk
// data region, which is where the digest begins.
func validateIndex(entries []IndexEntry, fileSize int64) (dataEnd int64, err error) {
	dataStart := int64(headerSize) + int64(len(entries))*indexEntrySize
	dataEnd = dataStart

	var result *multierror.Error
	prevEnd := uint64(dataStart)
	for i, entry := range entries {
		end := entry.Offset + uint64(entry.Length)
		if end < entry.Offset {
			result = multierror.Append(result, fmt.Errorf("index entry %d %s: offset overflow", i, entry.Chunk))
			continue
		}
		if entry.Offset < uint64(dataStart) {
			result = multierror.Append(result, fmt.Errorf("index entry %d %s: overlaps header or index", i, entry.Chunk))
			continue
		}
		if entry.Offset < prevEnd {
			result = multierror.Append(result, fmt.Errorf("index entry %d %s: overlaps previous chunk", i, entry.Chunk))
			continue
		}
		if end+digestSize > uint64(fileSize) {
			result = multierror.Append(result, fmt.Errorf("index entry %d %s: extends past end of file", i, entry.Chunk))
			continue
		}
		prevEnd = end
		if int64(end) > dataEnd {
			dataEnd = int64(end)
		}
	}
	if result != nil {
		return 0, fmt.Errorf("%w: %s", ErrMalformedChunk, result.Error())
	}
	return dataEnd, nil
}
