package wire

// Parser is implemented by types which know how to read themselves off the
// front of a byte slice, returning the remaining bytes.
type Parser[T any] func([]byte) (T, []byte, error)

// Pair parses two consecutive values, used for the handful of X11 replies
// whose body is just a couple of fixed fields glued together.
func Pair[A, B any](data []byte, pa Parser[A], pb Parser[B]) (a A, b B, rest []byte, err error) {
	a, data, err = pa(data)
	if err != nil {
		return
	}
	b, rest, err = pb(data)
	return
}

// Triple parses three consecutive values.
func Triple[A, B, C any](data []byte, pa Parser[A], pb Parser[B], pc Parser[C]) (a A, b B, c C, rest []byte, err error) {
	a, b, data, err = Pair(data, pa, pb)
	if err != nil {
		return
	}
	c, rest, err = pc(data)
	return
}

// SerializePair appends the wire encoding of a then b.
func SerializePair[A, B any](bytes []byte, a A, b B, sa func([]byte, A) []byte, sb func([]byte, B) []byte) []byte {
	bytes = sa(bytes, a)
	bytes = sb(bytes, b)
	return bytes
}

// SerializeTriple appends the wire encoding of a, b, then c.
func SerializeTriple[A, B, C any](bytes []byte, a A, b B, c C, sa func([]byte, A) []byte, sb func([]byte, B) []byte, sc func([]byte, C) []byte) []byte {
	bytes = sa(bytes, a)
	bytes = sb(bytes, b)
	bytes = sc(bytes, c)
	return bytes
}
