package mcstream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUvarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0x7f, 0x80, 0x81, 300, 16383, 16384, 1 << 21, 1 << 28, maxVaruint}
	for _, value := range values {
		encoded := appendUvarint(nil, value)
		decoded, err := readUvarint(bytes.NewReader(encoded))
		require.NoError(t, err, "value %d", value)
		assert.Equal(t, value, decoded)
	}
}

func TestUvarintEncoding(t *testing.T) {
	// Little-endian base-128: low seven bits first, high bit continues.
	assert.Equal(t, []byte{0x00}, appendUvarint(nil, 0))
	assert.Equal(t, []byte{0x7f}, appendUvarint(nil, 127))
	assert.Equal(t, []byte{0x80, 0x01}, appendUvarint(nil, 128))
	assert.Equal(t, []byte{0xac, 0x02}, appendUvarint(nil, 300))
}

func TestUvarintTruncated(t *testing.T) {
	_, err := readUvarint(bytes.NewReader([]byte{0x80}))
	assert.ErrorIs(t, err, ErrMalformedInteger)

	_, err = readUvarint(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrMalformedInteger)
}

func TestUvarintOverflow(t *testing.T) {
	// 2^33 decodes fine structurally but breaks the sanity cap.
	encoded := appendUvarint(nil, 1<<33)
	_, err := readUvarint(bytes.NewReader(encoded))
	assert.ErrorIs(t, err, ErrMalformedInteger)

	// A run of continuation bytes never terminating within 63 bits.
	_, err = readUvarint(bytes.NewReader(bytes.Repeat([]byte{0xff}, 12)))
	assert.ErrorIs(t, err, ErrMalformedInteger)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "minecraft:stone", "ns:with/path", "юникод"} {
		encoded := appendString(nil, s)
		in := bytes.NewReader(encoded)
		decoded, err := readString(in, in, len(encoded))
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestStringInvalidUTF8(t *testing.T) {
	encoded := appendUvarint(nil, 2)
	encoded = append(encoded, 0xff, 0xfe)
	in := bytes.NewReader(encoded)
	_, err := readString(in, in, len(encoded))
	assert.ErrorIs(t, err, ErrMalformedString)
}

func TestStringTruncated(t *testing.T) {
	encoded := appendString(nil, "minecraft:stone")
	in := bytes.NewReader(encoded[:5])
	_, err := readString(in, in, len(encoded))
	assert.ErrorIs(t, err, ErrMalformedString)
}

func TestStringLengthBeyondLimit(t *testing.T) {
	encoded := appendUvarint(nil, 1000)
	in := bytes.NewReader(encoded)
	_, err := readString(in, in, 10)
	assert.ErrorIs(t, err, ErrMalformedString)
}
