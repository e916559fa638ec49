// Package conn implements the concurrency-safe multiplexer that sits
// between application goroutines issuing X11 requests and a single
// byte-stream connection to an X11 server: it serializes outbound
// requests, demultiplexes inbound replies/errors/events back to the
// right caller by sequence number, and coordinates readers so that at
// most one goroutine ever blocks on the transport at a time.
package conn

import (
	"bufio"
	"io"
	"math"
	"sync"
	"time"
)

// traceReader and traceWriter wrap the transport so every actual read/write
// syscall fires the matching ClientTrace hooks, the same way the teacher
// wraps its SSH session's stdout/stdin pipes (netconf/client/transport.go's
// injectTraceReader/injectTraceWriter).
type traceReader struct {
	r     io.Reader
	trace *ClientTrace
}

func (t *traceReader) Read(p []byte) (c int, err error) {
	t.trace.ReadStart(p)
	defer func(begin time.Time) {
		t.trace.ReadDone(p, c, err, time.Since(begin))
	}(time.Now())

	c, err = t.r.Read(p)
	return
}

type traceWriter struct {
	w     io.Writer
	trace *ClientTrace
}

func (t *traceWriter) Write(p []byte) (c int, err error) {
	t.trace.WriteStart(p)
	defer func(begin time.Time) {
		t.trace.WriteDone(p, c, err, time.Since(begin))
	}(time.Now())

	c, err = t.w.Write(p)
	return
}

// Transport is the byte-stream connection to the X11 server. Dialing it
// (choosing TCP vs Unix socket, parsing a display string, running the
// xauth handshake) is outside this package's scope; callers hand over an
// already-connected transport.
type Transport interface {
	io.ReadWriteCloser
}

// Setup carries the handful of fields from the server's setup reply that
// this core needs. Parsing the full setup reply is outside this package's
// scope; callers extract these fields themselves.
type Setup struct {
	ResourceIDBase       uint32
	ResourceIDMask       uint32
	MaximumRequestLength uint16 // in 4-byte words, per the X11 wire format
}

// Conn is a connection multiplexer: the public orchestrator described in
// spec.md §4.4. It owns the outbound writer, pending table, and event queue
// behind one lock ("inner"), the inbound transport behind a second lock
// ("read"), and uses a condition variable bound to "inner" to let exactly
// one goroutine read at a time while others park or make independent
// progress.
type Conn struct {
	trace *ClientTrace
	setup Setup

	innerMu sync.Mutex
	cond    *sync.Cond
	out     *outbound
	in      *inbound

	readMu sync.Mutex
	r      io.Reader

	transport    Transport
	transportErr error // sticky once set; every call after this returns it

	ids    *idAllocator
	maxReq *maxRequestBytes
}

// New constructs a Conn around an already-connected transport. setup
// carries the fields this core needs from the server's setup reply, which
// must already have been read and parsed by the caller.
func New(transport Transport, setup Setup, opts ...Option) (*Conn, error) {
	cfg := resolveConfig(opts)

	tr := &traceReader{r: transport, trace: cfg.trace}
	tw := &traceWriter{w: transport, trace: cfg.trace}

	c := &Conn{
		trace:     cfg.trace,
		setup:     setup,
		transport: transport,
		r:         tr,
		out:       newOutbound(bufio.NewWriterSize(tw, cfg.writeBufSize), cfg.trace),
		in:        newInbound(cfg.eventQueueHint),
		ids:       newIDAllocator(setup.ResourceIDBase, setup.ResourceIDMask, cfg.xcMiscOpcode),
		maxReq:    &maxRequestBytes{extOpcode: cfg.bigRequestsOpcode},
	}
	c.cond = sync.NewCond(&c.innerMu)
	return c, nil
}

// Close closes the underlying transport. Any goroutine currently blocked in
// the reader role will observe an I/O error and return it to its caller.
func (c *Conn) Close() error {
	return c.transport.Close()
}

// Setup returns the setup fields the connection was constructed with.
func (c *Conn) Setup() Setup { return c.setup }

// SendRequestWithReply submits a request expecting exactly one reply.
func (c *Conn) SendRequestWithReply(bufs [][]byte, fds []int) (Cookie, error) {
	return c.sendRequest(bufs, fds, HasResponse)
}

// SendRequestWithoutReply submits a void request: the server sends no
// reply on success, only an error on failure.
func (c *Conn) SendRequestWithoutReply(bufs [][]byte, fds []int) (Cookie, error) {
	return c.sendRequest(bufs, fds, IsVoid)
}

// SendRequestWithReplyWithFDs always fails: this core never passes file
// descriptors over the wire (spec.md §1, Non-goals).
func (c *Conn) SendRequestWithReplyWithFDs([][]byte, []int) (Cookie, error) {
	return 0, ErrFDPassingFailed
}

func (c *Conn) sendRequest(bufs [][]byte, fds []int, kind RequestKind) (Cookie, error) {
	if len(fds) != 0 {
		return 0, ErrFDPassingFailed
	}

	c.trace.SendStart(0, kind)
	begin := time.Now()

	c.innerMu.Lock()
	defer c.innerMu.Unlock()

	if c.transportErr != nil {
		return 0, c.transportErr
	}

	maxBytes := c.currentMaxRequestBytesLocked()
	framed, err := c.out.frame(bufs, maxBytes)
	if err != nil {
		c.trace.SendDone(0, kind, err, time.Since(begin))
		return 0, err
	}

	seq, err := c.out.send(framed, kind, c.in)
	if err != nil {
		c.transportErr = err
		c.trace.Error("send", err)
	}
	c.trace.SendDone(seq, kind, err, time.Since(begin))
	return Cookie(seq), err
}

// currentMaxRequestBytesLocked returns the maximum request size without
// triggering a new BigRequests negotiation: it reads the snapshot
// MaximumRequestBytes last published into outbound, falling back to the
// setup value if negotiation has never completed. It must never acquire
// maxReq.mu itself — see the comment on outbound.maxRequestBytesCache.
func (c *Conn) currentMaxRequestBytesLocked() int {
	if c.out.maxRequestBytesCache != 0 {
		return c.out.maxRequestBytesCache
	}
	return int(c.setup.MaximumRequestLength) * 4
}

// DiscardReply marks a pending request's reply/error for silent dropping
// (DiscardReplyAndError) or drops only the reply while still surfacing a
// later error to CheckForError (DiscardReply).
func (c *Conn) DiscardReply(seq uint64, mode DiscardMode) {
	c.innerMu.Lock()
	defer c.innerMu.Unlock()
	c.in.discard(seq, mode)
}

// Flush pushes any buffered outbound bytes to the transport.
func (c *Conn) Flush() error {
	c.innerMu.Lock()
	defer c.innerMu.Unlock()
	if c.transportErr != nil {
		return c.transportErr
	}
	if err := c.out.flush(); err != nil {
		c.transportErr = err
		c.trace.Error("flush", err)
		return err
	}
	return nil
}

// WaitForReplyOrError blocks until either a reply or an error has arrived
// for seq, returning the reply bytes or the decoded *X11Error.
func (c *Conn) WaitForReplyOrError(seq uint64) ([]byte, error) {
	c.innerMu.Lock()
	if err := c.out.flush(); err != nil {
		c.transportErr = err
		c.trace.Error("flush", err)
		c.innerMu.Unlock()
		return nil, err
	}
	for {
		if raw, ok := c.in.pollReplyOrError(seq); ok {
			c.innerMu.Unlock()
			if raw[0] == respError {
				return nil, &X11Error{Seq: seq, Raw: raw}
			}
			return raw, nil
		}
		if c.transportErr != nil {
			err := c.transportErr
			c.innerMu.Unlock()
			return nil, err
		}
		c.readPacketAndEnqueueLocked()
	}
}

// WaitForReply blocks until a reply has arrived for seq, suppressing any
// error: callers that only care about success pass through nil in that case.
func (c *Conn) WaitForReply(seq uint64) ([]byte, error) {
	c.innerMu.Lock()
	if err := c.out.flush(); err != nil {
		c.transportErr = err
		c.trace.Error("flush", err)
		c.innerMu.Unlock()
		return nil, err
	}
	for {
		raw, result := c.in.pollReply(seq)
		switch result {
		case pollGotReply:
			c.innerMu.Unlock()
			return raw, nil
		case pollNoReply:
			c.innerMu.Unlock()
			return nil, nil
		}
		if c.transportErr != nil {
			err := c.transportErr
			c.innerMu.Unlock()
			return nil, err
		}
		c.readPacketAndEnqueueLocked()
	}
}

// getInputFocusRequest is the core X11 GetInputFocus request (major opcode
// 43, no extra data): the cheapest round trip that always exists on any
// X11 server, used internally as a fence by CheckForError.
var getInputFocusRequest = []byte{43, 0, 1, 0}

// CheckForError injects a fence request (GetInputFocus) after seq and
// blocks until the fence's reply proves the server has processed seq,
// returning any error the server reported for it.
func (c *Conn) CheckForError(seq uint64) (*X11Error, error) {
	c.innerMu.Lock()

	maxBytes := c.currentMaxRequestBytesLocked()
	framed, err := c.out.frame([][]byte{getInputFocusRequest}, maxBytes)
	if err != nil {
		c.innerMu.Unlock()
		return nil, err
	}
	fenceSeq, err := c.out.send(framed, HasResponse, c.in)
	if err != nil {
		c.transportErr = err
		c.trace.Error("send", err)
		c.innerMu.Unlock()
		return nil, err
	}

	if err := c.out.flush(); err != nil {
		c.transportErr = err
		c.trace.Error("flush", err)
		c.innerMu.Unlock()
		return nil, err
	}

	for {
		raw, result := c.in.pollCheck(seq, fenceSeq)
		switch result {
		case pollGotReply:
			c.innerMu.Unlock()
			return &X11Error{Seq: seq, Raw: raw}, nil
		case pollNoReply:
			c.innerMu.Unlock()
			return nil, nil
		}
		if c.transportErr != nil {
			e := c.transportErr
			c.innerMu.Unlock()
			return nil, e
		}
		c.readPacketAndEnqueueLocked()
	}
}

// PollForEventWithSequence returns the next queued event, if any, without blocking.
func (c *Conn) PollForEventWithSequence() (Event, bool, error) {
	c.innerMu.Lock()
	defer c.innerMu.Unlock()
	if c.transportErr != nil {
		return Event{}, false, c.transportErr
	}
	entry, ok := c.in.popEvent()
	return Event{Seq: entry.seq, Raw: entry.raw}, ok, nil
}

// WaitForEventWithSequence blocks until an event is available.
func (c *Conn) WaitForEventWithSequence() (Event, error) {
	c.innerMu.Lock()
	for {
		if entry, ok := c.in.popEvent(); ok {
			c.innerMu.Unlock()
			return Event{Seq: entry.seq, Raw: entry.raw}, nil
		}
		if c.transportErr != nil {
			err := c.transportErr
			c.innerMu.Unlock()
			return Event{}, err
		}
		c.readPacketAndEnqueueLocked()
	}
}

// GenerateID returns a fresh resource ID, refilling the allocator's range
// from the server via an XC-MISC GetXIDRange request when exhausted.
func (c *Conn) GenerateID() (uint32, error) {
	send := func(buf []byte) (uint64, error) { return c.internalSendWithReply(buf) }
	wait := func(seq uint64) ([]byte, error) { return c.WaitForReplyOrError(seq) }
	return c.ids.generate(send, wait)
}

// MaximumRequestBytes returns the negotiated maximum request size in bytes,
// triggering BigRequests.Enable negotiation on first call.
func (c *Conn) MaximumRequestBytes() int {
	send := func(buf []byte) (uint64, error) { return c.internalSendWithReply(buf) }
	wait := func(seq uint64) ([]byte, error) { return c.WaitForReplyOrError(seq) }
	length, bigWords := c.maxReq.value(send, wait, int(c.setup.MaximumRequestLength)*4, math.MaxInt)

	c.innerMu.Lock()
	if bigWords != 0 {
		c.out.bigRequestsMax = bigWords
	}
	c.out.maxRequestBytesCache = length
	c.innerMu.Unlock()
	return length
}

// internalSendWithReply sends a pre-framed request expecting a reply,
// without going through frame()/length-fixup: internal protocol requests
// (BigRequests.Enable, GetXIDRange) are small and fixed-size by construction.
func (c *Conn) internalSendWithReply(buf []byte) (uint64, error) {
	c.innerMu.Lock()
	defer c.innerMu.Unlock()
	if c.transportErr != nil {
		return 0, c.transportErr
	}
	seq, err := c.out.send(buf, HasResponse, c.in)
	if err != nil {
		c.transportErr = err
		c.trace.Error("send", err)
	}
	return seq, err
}

// readPacketAndEnqueueLocked implements the reader-rotation protocol from
// spec.md §4.4. Precondition and postcondition: innerMu is held. If another
// goroutine already holds the reader role, this parks on the condition
// variable (releasing innerMu) until that goroutine has enqueued a packet.
// Otherwise, this goroutine becomes the reader: it releases innerMu so
// other goroutines can enqueue requests and harvest already-read packets,
// performs one blocking read, reacquires innerMu, and only then releases
// the read lock — never before — so a would-be successor reader cannot
// block on a packet whose predecessor has not yet been enqueued.
func (c *Conn) readPacketAndEnqueueLocked() {
	if !c.readMu.TryLock() {
		c.trace.ReaderParked()
		c.cond.Wait()
		return
	}

	c.trace.ReaderElected()
	c.innerMu.Unlock()
	packet, err := readPacket(c.r)
	c.innerMu.Lock()
	c.readMu.Unlock()

	if err != nil {
		c.transportErr = err
		c.trace.Error("read", err)
		c.cond.Broadcast()
		return
	}

	c.in.enqueuePacket(packet)
	c.trace.PacketEnqueued(c.in.lastSeen, packet[0])
	c.cond.Broadcast()
}
