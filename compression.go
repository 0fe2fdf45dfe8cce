package mcstream

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the per-chunk compression codec. The value is
// stored verbatim in the file header.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionZstd   CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionBrotli CompressionType = 3
)

// Matches the reference encoder settings so output stays byte-stable across
// tool versions.
const brotliQuality = 4

// maxChunkPayload bounds the decompressed size of a single chunk. A hostile
// index entry cannot make the reader allocate more than this.
const maxChunkPayload = 1 << 30

func (c CompressionType) valid() bool {
	return c <= CompressionBrotli
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

// ParseCompressionType maps a codec name to its header byte value.
func ParseCompressionType(name string) (CompressionType, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "brotli":
		return CompressionBrotli, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
	}
}

// compress encodes data with the selected codec. Each chunk's blob is
// self-delimited by the length stored in the index, never by a framing
// trailer of its own.
func compress(data []byte, compression CompressionType) ([]byte, error) {
	switch compression {
	case CompressionNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case CompressionZstd:
		// Parallelism happens across chunks; a single-goroutine encoder per
		// chunk keeps the output bytes deterministic.
		var out bytes.Buffer
		encoder, err := zstd.NewWriter(&out, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, compressionFailed(compression, err)
		}
		if _, err = encoder.Write(data); err != nil {
			return nil, compressionFailed(compression, err)
		}
		if err = encoder.Close(); err != nil {
			return nil, compressionFailed(compression, err)
		}
		return out.Bytes(), nil

	case CompressionLZ4:
		var out bytes.Buffer
		encoder := lz4.NewWriter(&out)
		if _, err := encoder.Write(data); err != nil {
			return nil, compressionFailed(compression, err)
		}
		if err := encoder.Close(); err != nil {
			return nil, compressionFailed(compression, err)
		}
		return out.Bytes(), nil

	case CompressionBrotli:
		var out bytes.Buffer
		encoder := brotli.NewWriterLevel(&out, brotliQuality)
		if _, err := encoder.Write(data); err != nil {
			return nil, compressionFailed(compression, err)
		}
		if err := encoder.Close(); err != nil {
			return nil, compressionFailed(compression, err)
		}
		return out.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, byte(compression))
	}
}

// decompress decodes a chunk blob read from an untrusted file.
func decompress(data []byte, compression CompressionType) ([]byte, error) {
	switch compression {
	case CompressionNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case CompressionZstd:
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, compressionFailed(compression, err)
		}
		defer decoder.Close()
		return readAllBounded(decoder.IOReadCloser(), compression)

	case CompressionLZ4:
		return readAllBounded(io.NopCloser(lz4.NewReader(bytes.NewReader(data))), compression)

	case CompressionBrotli:
		return readAllBounded(io.NopCloser(brotli.NewReader(bytes.NewReader(data))), compression)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, byte(compression))
	}
}

func readAllBounded(r io.ReadCloser, compression CompressionType) ([]byte, error) {
	defer r.Close()
	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(r, maxChunkPayload+1))
	if err != nil {
		return nil, compressionFailed(compression, err)
	}
	if n > maxChunkPayload {
		return nil, compressionFailed(compression, fmt.Errorf("decompressed chunk exceeds %d bytes", maxChunkPayload))
	}
	return out.Bytes(), nil
}
