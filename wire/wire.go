// Package wire provides the fixed-width integer and list/tuple
// (de)serialization primitives used by the X11 wire format: little-endian
// byte order, no alignment beyond what callers already pad for.
package wire

import (
	"math"

	"github.com/pkg/errors"
)

// ErrShort is returned when a buffer is too small to hold the value being parsed.
var ErrShort = errors.New("wire: buffer too short")

// Int is the set of fixed-width integer primitives the X11 wire format uses.
type Int interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64
}

// ParseInt reads a single little-endian integer of type T from the front of b,
// returning the value and the remaining bytes.
func ParseInt[T Int](b []byte) (T, []byte, error) {
	var zero T
	size := sizeOf(zero)
	if len(b) < size {
		return zero, nil, ErrShort
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return T(v), b[size:], nil
}

// PutInt appends the little-endian encoding of v to bytes and returns the result.
func PutInt[T Int](bytes []byte, v T) []byte {
	size := sizeOf(v)
	u := uint64(v)
	for i := 0; i < size; i++ {
		bytes = append(bytes, byte(u))
		u >>= 8
	}
	return bytes
}

func sizeOf[T Int](T) int {
	var v T
	switch any(v).(type) {
	case uint8, int8:
		return 1
	case uint16, int16:
		return 2
	case uint32, int32:
		return 4
	case uint64, int64:
		return 8
	default:
		return 0
	}
}

// ParseBool reads a single byte as a boolean (non-zero is true).
func ParseBool(b []byte) (bool, []byte, error) {
	v, rest, err := ParseInt[uint8](b)
	return v != 0, rest, err
}

// PutBool appends the wire encoding of a boolean.
func PutBool(bytes []byte, v bool) []byte {
	if v {
		return append(bytes, 1)
	}
	return append(bytes, 0)
}

// ParseFloat32 reads a little-endian float32, bit-for-bit as the server sent it.
func ParseFloat32(b []byte) (float32, []byte, error) {
	bits, rest, err := ParseInt[uint32](b)
	if err != nil {
		return 0, nil, err
	}
	return math.Float32frombits(bits), rest, nil
}

// PutFloat32 appends the wire encoding of a float32.
func PutFloat32(bytes []byte, v float32) []byte {
	return PutInt(bytes, math.Float32bits(v))
}

// ParseFloat64 reads a little-endian float64.
func ParseFloat64(b []byte) (float64, []byte, error) {
	bits, rest, err := ParseInt[uint64](b)
	if err != nil {
		return 0, nil, err
	}
	return math.Float64frombits(bits), rest, nil
}

// PutFloat64 appends the wire encoding of a float64.
func PutFloat64(bytes []byte, v float64) []byte {
	return PutInt(bytes, math.Float64bits(v))
}

// ParseList parses n consecutive fixed-width integers of type T from data.
func ParseList[T Int](data []byte, n int) ([]T, []byte, error) {
	result := make([]T, 0, n)
	remaining := data
	for i := 0; i < n; i++ {
		var v T
		var err error
		v, remaining, err = ParseInt[T](remaining)
		if err != nil {
			return nil, nil, err
		}
		result = append(result, v)
	}
	return result, remaining, nil
}

// PutList appends the wire encoding of each element of list, in order.
func PutList[T Int](bytes []byte, list []T) []byte {
	for _, v := range list {
		bytes = PutInt(bytes, v)
	}
	return bytes
}

// ParseU8List splits off the first n bytes of data verbatim, for opaque byte lists.
func ParseU8List(data []byte, n int) ([]byte, []byte, error) {
	if len(data) < n {
		return nil, nil, ErrShort
	}
	return data[:n], data[n:], nil
}

// Pad4 returns the number of padding bytes needed to round n up to a multiple of 4.
func Pad4(n int) int {
	return (4 - n%4) % 4
}

// PadTo4 appends zero bytes to bytes until its length is a multiple of 4.
func PadTo4(bytes []byte) []byte {
	for len(bytes)%4 != 0 {
		bytes = append(bytes, 0)
	}
	return bytes
}
