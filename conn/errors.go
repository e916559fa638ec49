package conn

import "github.com/pkg/errors"

// ErrFDPassingFailed is returned whenever a caller supplies a non-empty
// descriptor list: this core never passes file descriptors over the wire.
var ErrFDPassingFailed = errors.New("x11conn: descriptor passing not supported")

// ErrIDsExhausted is returned by GenerateID when the server reports that the
// resource-ID range is exhausted (an XC-MISC GetXIDRange reply of (0, 0)).
var ErrIDsExhausted = errors.New("x11conn: resource IDs exhausted")

// ErrRequestTooLong is returned when a request does not fit in the X11
// length field, even using the big-requests extended form (or when
// big-requests has not been negotiated and the small form does not fit).
var ErrRequestTooLong = errors.New("x11conn: request too long")

// TransportError wraps an I/O failure on the underlying byte stream. Once a
// Conn observes one, it is fatal: every subsequent blocking call returns the
// same error.
type TransportError struct {
	cause error
}

func (e *TransportError) Error() string { return "x11conn: transport error: " + e.cause.Error() }
func (e *TransportError) Unwrap() error { return e.cause }

func newTransportError(cause error) *TransportError {
	return &TransportError{cause: errors.WithStack(cause)}
}

// ProtocolError signals that the peer sent something that does not match
// the expected frame shape, or that a typed reply failed to parse.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "x11conn: protocol error: " + e.msg }

func newProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{msg: errors.Errorf(format, args...).Error()}
}

// X11Error carries a well-formed 32-byte X11 error packet from the server.
// It is data, not an exception: the core never retries and never inspects
// the error code beyond what is needed to route it (that mapping is the
// out-of-scope extension registry).
type X11Error struct {
	// Seq is the extended 64-bit sequence number this error was matched against.
	Seq uint64
	// Raw is the 32-byte error packet as received.
	Raw []byte
}

func (e *X11Error) Error() string {
	return errors.Errorf("x11conn: server error code=%d seq=%d", e.Raw[1], e.Seq).Error()
}

// ErrorCode returns the X11 error code (byte 1 of the raw packet).
func (e *X11Error) ErrorCode() uint8 { return e.Raw[1] }
