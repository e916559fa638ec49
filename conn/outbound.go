package conn

import (
	"bufio"
	"time"

	"github.com/damianoneill/x11conn/wire"
)

const maxSmallLengthWords = 0xFFFF

// outbound is the half of the connection's inner state responsible for
// turning caller-supplied request buffers into framed bytes on the wire and
// recording a request record for later matching. It is mutated only while
// the owning Conn holds its inner lock.
type outbound struct {
	w       *bufio.Writer
	trace   *ClientTrace
	nextSeq uint64

	// bigRequestsMax is the server-advertised maximum request length, in
	// 4-byte words, once BigRequests.Enable has been confirmed. Zero means
	// big-requests has not (yet, or ever) been negotiated.
	bigRequestsMax uint32

	// maxRequestBytesCache is a snapshot of maxRequestBytes.value's resolved
	// byte ceiling, refreshed under innerMu by MaximumRequestBytes. Zero
	// means the cache has not resolved yet; Conn.currentMaxRequestBytesLocked
	// then falls back to the setup value. Kept here (rather than consulting
	// maxRequestBytes.mu directly from frame) so that sendRequest/frame never
	// acquires maxRequestBytes.mu while holding innerMu: MaximumRequestBytes
	// acquires them in the opposite order (maxRequestBytes.mu first, then
	// innerMu via send/waitForReply), and taking both under innerMu here
	// would be a lock-order inversion.
	maxRequestBytesCache int
}

func newOutbound(w *bufio.Writer, trace *ClientTrace) *outbound {
	return &outbound{w: w, trace: trace}
}

// frame concatenates bufs into a single request buffer, fixes up its length
// field, and picks normal vs big-request framing against the supplied
// maximum request size (in bytes).
func (o *outbound) frame(bufs [][]byte, maxRequestBytes int) ([]byte, error) {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	if total < 4 || total%4 != 0 {
		return nil, newProtocolError("request length %d is not a positive multiple of 4", total)
	}

	body := make([]byte, 0, total+4)
	for _, b := range bufs {
		body = append(body, b...)
	}

	words := total / 4
	if words <= maxSmallLengthWords && total <= maxRequestBytes {
		body[2] = byte(words)
		body[3] = byte(words >> 8)
		return body, nil
	}

	if o.bigRequestsMax == 0 || uint32(words+1) > o.bigRequestsMax {
		return nil, ErrRequestTooLong
	}

	big := make([]byte, 4, total+8)
	copy(big, body[:4])
	big[2], big[3] = 0, 0
	big = wire.PutInt(big, uint32(words+1))
	big = append(big, body[4:]...)
	return big, nil
}

// send assigns the next sequence number to a request, registers it with the
// pending table, and writes its framed bytes to the buffered writer. It does
// not flush: flushing happens lazily, from the waiter side.
func (o *outbound) send(framed []byte, kind RequestKind, in *inbound) (uint64, error) {
	o.nextSeq++
	seq := o.nextSeq
	in.track(seq, kind)
	if _, err := o.w.Write(framed); err != nil {
		return seq, newTransportError(err)
	}
	return seq, nil
}

func (o *outbound) flush() (err error) {
	begin := time.Now()
	defer func() { o.trace.FlushDone(err, time.Since(begin)) }()

	if ferr := o.w.Flush(); ferr != nil {
		err = newTransportError(ferr)
		return err
	}
	return nil
}
