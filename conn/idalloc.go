package conn

import (
	"sync"

	"github.com/damianoneill/x11conn/wire"
)

// idAllocator hands out resource IDs from the server-granted range,
// refilling via an XC-MISC GetXIDRange request when exhausted. Guarded by
// its own mutex: refilling sends a request and waits for its reply, which
// in turn needs the connection's inner/read locks, so (like
// maxRequestBytes) this must never be held across one of those waits by
// more than the one goroutine performing the refill.
type idAllocator struct {
	mu   sync.Mutex
	base uint32
	mask uint32
	next uint32

	// extOpcode is the major opcode the server has assigned the XC-MISC
	// extension. As with BigRequests, resolving it is an out-of-scope
	// extension-registry lookup; callers supply it up front.
	extOpcode uint8
}

func newIDAllocator(base, mask uint32, extOpcode uint8) *idAllocator {
	return &idAllocator{base: base, mask: mask, next: 0, extOpcode: extOpcode}
}

// increment is the lowest set bit of mask: mask & -mask.
func increment(mask uint32) uint32 {
	return mask & -mask
}

// encodeGetXIDRange builds the wire bytes for an XC-MISC GetXIDRange request.
func encodeGetXIDRange(extOpcode uint8) []byte {
	buf := make([]byte, 4)
	buf[0] = extOpcode
	buf[1] = 1 // GetXIDRange minor opcode
	buf[2], buf[3] = 1, 0
	return buf
}

// decodeGetXIDRangeReply reads (start_id, count) from a GetXIDRange reply.
// The valid mask for the new range is count-1 (count IDs starting at
// start_id); the caller derives base/mask from that.
func decodeGetXIDRangeReply(raw []byte) (startID, count uint32, err error) {
	if len(raw) < 16 {
		return 0, 0, newProtocolError("short GetXIDRange reply: %d bytes", len(raw))
	}
	startID, _, err = wire.ParseInt[uint32](raw[8:12])
	if err != nil {
		return 0, 0, err
	}
	count, _, err = wire.ParseInt[uint32](raw[12:16])
	return startID, count, err
}

// generate returns the next resource ID, refilling the (base, mask) range
// via send/waitForReply when the current range is exhausted.
func (a *idAllocator) generate(send func([]byte) (uint64, error), waitForReply func(uint64) ([]byte, error)) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next > a.mask {
		if err := a.refill(send, waitForReply); err != nil {
			return 0, err
		}
	}

	id := a.base | a.next
	a.next += increment(a.mask)
	return id, nil
}

func (a *idAllocator) refill(send func([]byte) (uint64, error), waitForReply func(uint64) ([]byte, error)) error {
	if a.extOpcode == 0 {
		// No XC-MISC opcode configured: refilling is unavailable, so treat
		// range exhaustion as fatal rather than guess a wire value that could
		// land on an unrelated extension's requests.
		return ErrIDsExhausted
	}
	seq, err := send(encodeGetXIDRange(a.extOpcode))
	if err != nil {
		return err
	}
	raw, err := waitForReply(seq)
	if err != nil {
		return err
	}
	startID, count, err := decodeGetXIDRangeReply(raw)
	if err != nil {
		return err
	}
	if startID == 0 && count == 0 {
		return ErrIDsExhausted
	}
	a.base = startID
	a.mask = count - 1
	a.next = 0
	return nil
}
