package conn

import (
	"sync"

	"github.com/damianoneill/x11conn/wire"
)

const bigRequestsEnableReplyLen = 32 // header + 4-byte maximum_request_length, padded to 32

// maxReqState is the three-state machine from spec §4.6.
type maxReqState int

const (
	maxReqUnknown maxReqState = iota
	maxReqRequested
	maxReqKnown
)

// maxRequestBytes is guarded by its own mutex, independent of the
// connection's inner/read locks: prefetching sends a request (which itself
// takes the inner lock) and then waits for its reply (which takes inner and
// read in turn), so this cache must never be held while any of those locks
// are acquired by someone else waiting on it.
type maxRequestBytes struct {
	mu    sync.Mutex
	state maxReqState
	seq   uint64
	ok    bool // false if sending the Enable request itself failed
	bytes int
	bigWords uint32

	// extOpcode is the major opcode the server has assigned the
	// BigRequests extension. Resolving it is an extension-registry lookup,
	// out of scope for this core (see spec §1); callers that want
	// negotiation supply it up front via WithBigRequestsOpcode. Zero means
	// big-requests negotiation is skipped and the setup value is used.
	extOpcode uint8
}

// encodeBigRequestsEnable builds the wire bytes for a BigRequests.Enable request.
func encodeBigRequestsEnable(extOpcode uint8) []byte {
	buf := make([]byte, 4)
	buf[0] = extOpcode
	buf[1] = 0 // BigRequests.Enable minor opcode
	buf[2], buf[3] = 1, 0
	return buf
}

// decodeBigRequestsEnableReply reads the maximum_request_length field (in
// 4-byte words) out of a BigRequests.Enable reply packet.
func decodeBigRequestsEnableReply(raw []byte) (uint32, error) {
	if len(raw) < bigRequestsEnableReplyLen {
		return 0, newProtocolError("short BigRequests.Enable reply: %d bytes", len(raw))
	}
	v, _, err := wire.ParseInt[uint32](raw[8:12])
	return v, err
}

func (m *maxRequestBytes) prefetchLocked(send func([]byte) (uint64, error)) {
	if m.state != maxReqUnknown {
		return
	}
	if m.extOpcode == 0 {
		// Negotiation unavailable: behave as if sending failed, so value()
		// falls straight back to the setup value.
		m.state = maxReqRequested
		m.ok = false
		return
	}
	seq, err := send(encodeBigRequestsEnable(m.extOpcode))
	m.state = maxReqRequested
	m.ok = err == nil
	m.seq = seq
}

// prefetch issues BigRequests.Enable if it has not already been attempted.
func (m *maxRequestBytes) prefetch(send func([]byte) (uint64, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefetchLocked(send)
}

// value resolves the cache to a concrete byte count, prefetching and
// (if needed) waiting for the Enable reply along the way. setupMaxBytes is
// the fallback advertised in the initial setup reply, already in bytes.
// bigWords is non-zero only when big-requests was actually negotiated,
// giving the outbound serializer the server-advertised ceiling (in words).
func (m *maxRequestBytes) value(send func([]byte) (uint64, error), waitForReply func(uint64) ([]byte, error), setupMaxBytes int, wordSizeMax int) (length int, bigWords uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prefetchLocked(send)

	if m.state == maxReqKnown {
		return m.bytes, m.bigWords
	}

	length = setupMaxBytes
	if m.ok {
		if raw, err := waitForReply(m.seq); err == nil {
			if words, werr := decodeBigRequestsEnableReply(raw); werr == nil {
				length = int(words) * 4
				if length < 0 || length > wordSizeMax {
					length = wordSizeMax
				}
				bigWords = words
			}
		}
	}
	m.bytes = length
	m.bigWords = bigWords
	m.state = maxReqKnown
	return length, bigWords
}
