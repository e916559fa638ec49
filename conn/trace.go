package conn

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
)

// unique type to prevent assignment from outside this package.
type clientEventContextKey struct{}

// ContextClientTrace returns the Trace associated with the provided context.
// If none is set, it returns the no-op hook set.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientEventContextKey{}).(*ClientTrace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		merged := *trace
		_ = mergo.Merge(&merged, NoOpLoggingHooks)
		trace = &merged
	}
	return trace
}

// WithClientTrace returns a new context based on the provided parent ctx,
// carrying trace for later retrieval by ContextClientTrace. New takes no
// context, so hooks reach a Conn only through the WithTrace option.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	return context.WithValue(ctx, clientEventContextKey{}, trace)
}

// ClientTrace defines hooks fired around the lifecycle of a connection and
// the requests it carries. Any nil hook is treated as a no-op.
//
//nolint:golint
type ClientTrace struct {
	// ReadStart is called before a read from the underlying transport.
	ReadStart func(buf []byte)
	// ReadDone is called after a read from the underlying transport.
	ReadDone func(buf []byte, c int, err error, d time.Duration)

	// WriteStart is called before a write to the underlying transport.
	WriteStart func(buf []byte)
	// WriteDone is called after a write to the underlying transport.
	WriteDone func(buf []byte, c int, err error, d time.Duration)

	// FlushDone is called after the buffered writer has been flushed.
	FlushDone func(err error, d time.Duration)

	// PacketEnqueued is called after a packet has been classified and attached
	// to its pending request or appended to the event queue.
	PacketEnqueued func(seq uint64, responseType uint8)

	// ReaderElected is called when this goroutine becomes the reader.
	ReaderElected func()
	// ReaderParked is called when this goroutine blocks on the condition
	// variable waiting for another goroutine's read to complete.
	ReaderParked func()

	// SendStart is called before a request is serialized and written.
	SendStart func(seq uint64, kind RequestKind)
	// SendDone is called after a request has been submitted (or failed).
	SendDone func(seq uint64, kind RequestKind, err error, d time.Duration)

	// Error is called after an error condition has been detected.
	Error func(context string, err error)
}

// DefaultLoggingHooks logs errors only.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(context string, err error) {
		log.Printf("x11conn error context:%s err:%v\n", context, err)
	},
}

// MetricLoggingHooks logs timing information for reads, writes, and sends.
var MetricLoggingHooks = &ClientTrace{
	ReadDone: func(p []byte, c int, err error, d time.Duration) {
		log.Printf("x11conn read len:%d err:%v took:%dus\n", c, err, d.Microseconds())
	},
	WriteDone: func(p []byte, c int, err error, d time.Duration) {
		log.Printf("x11conn write len:%d err:%v took:%dus\n", c, err, d.Microseconds())
	},
	SendDone: func(seq uint64, kind RequestKind, err error, d time.Duration) {
		log.Printf("x11conn send seq:%d kind:%v err:%v took:%dus\n", seq, kind, err, d.Microseconds())
	},
	Error: DefaultLoggingHooks.Error,
}

// NoOpLoggingHooks is the zero-cost hook set every Conn falls back to.
var NoOpLoggingHooks = &ClientTrace{
	ReadStart:      func(p []byte) {},
	ReadDone:       func(p []byte, c int, err error, d time.Duration) {},
	WriteStart:     func(p []byte) {},
	WriteDone:      func(p []byte, c int, err error, d time.Duration) {},
	FlushDone:      func(err error, d time.Duration) {},
	PacketEnqueued: func(seq uint64, responseType uint8) {},
	ReaderElected:  func() {},
	ReaderParked:   func() {},
	SendStart:      func(seq uint64, kind RequestKind) {},
	SendDone:       func(seq uint64, kind RequestKind, err error, d time.Duration) {},
	Error:          func(context string, err error) {},
}

func (t RequestKind) String() string {
	if t == IsVoid {
		return "void"
	}
	return "has-response"
}
