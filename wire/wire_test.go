package wire

import (
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestRoundTripInts(t *testing.T) {
	var b []byte
	b = PutInt[uint8](b, 0xAB)
	b = PutInt[int16](b, -1234)
	b = PutInt[uint32](b, 0xDEADBEEF)
	b = PutInt[uint64](b, 0x0102030405060708)

	v1, rest, err := ParseInt[uint8](b)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0xAB), v1)

	v2, rest, err := ParseInt[int16](rest)
	assert.NoError(t, err)
	assert.Equal(t, int16(-1234), v2)

	v3, rest, err := ParseInt[uint32](rest)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v3)

	v4, rest, err := ParseInt[uint64](rest)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v4)
	assert.Empty(t, rest)
}

func TestParseIntShort(t *testing.T) {
	_, _, err := ParseInt[uint32]([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShort)
}

func TestRoundTripBool(t *testing.T) {
	b := PutBool(nil, true)
	b = PutBool(b, false)

	v1, rest, err := ParseBool(b)
	assert.NoError(t, err)
	assert.True(t, v1)

	v2, _, err := ParseBool(rest)
	assert.NoError(t, err)
	assert.False(t, v2)
}

func TestRoundTripFloats(t *testing.T) {
	b := PutFloat32(nil, 3.5)
	b = PutFloat64(b, -12.25)

	f32, rest, err := ParseFloat32(b)
	assert.NoError(t, err)
	assert.Equal(t, float32(3.5), f32)

	f64, _, err := ParseFloat64(rest)
	assert.NoError(t, err)
	assert.Equal(t, -12.25, f64)
}

func TestRoundTripList(t *testing.T) {
	in := []uint16{1, 2, 3, 0xFFFF}
	b := PutList(nil, in)

	out, rest, err := ParseList[uint16](b, len(in))
	assert.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Empty(t, rest)
}

func TestParseListShort(t *testing.T) {
	_, _, err := ParseList[uint32]([]byte{1, 2, 3}, 2)
	assert.ErrorIs(t, err, ErrShort)
}

func TestU8List(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	got, rest, err := ParseU8List(data, 3)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Equal(t, []byte{4, 5}, rest)

	_, _, err = ParseU8List(data, 10)
	assert.ErrorIs(t, err, ErrShort)
}

func TestPad4(t *testing.T) {
	assert.Equal(t, 0, Pad4(0))
	assert.Equal(t, 3, Pad4(1))
	assert.Equal(t, 2, Pad4(2))
	assert.Equal(t, 1, Pad4(3))
	assert.Equal(t, 0, Pad4(4))

	assert.Equal(t, []byte{1, 0, 0, 0}, PadTo4([]byte{1}))
	assert.Equal(t, []byte{1, 2, 3, 4}, PadTo4([]byte{1, 2, 3, 4}))
}

func TestTuplePair(t *testing.T) {
	var b []byte
	b = PutInt[uint16](b, 7)
	b = PutInt[uint32](b, 99)

	a, c, rest, err := Pair(b,
		func(d []byte) (uint16, []byte, error) { return ParseInt[uint16](d) },
		func(d []byte) (uint32, []byte, error) { return ParseInt[uint32](d) },
	)
	assert.NoError(t, err)
	assert.Equal(t, uint16(7), a)
	assert.Equal(t, uint32(99), c)
	assert.Empty(t, rest)
}
