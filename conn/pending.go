package conn

import "github.com/damianoneill/x11conn/wire"

// requestState is a request sent but not yet fully resolved.
type requestState struct {
	seq     uint64
	kind    RequestKind
	discard *DiscardMode // nil unless DiscardReply has been requested
	reply   []byte       // set once a reply or error packet has arrived
	isError bool         // reply holds an error packet, not a reply packet
	taken   bool         // a waiter has consumed the result
}

// eventEntry pairs a delivered event with its extended sequence number.
type eventEntry struct {
	seq uint64
	raw []byte
}

// inbound is the demultiplexer's central table: every request sent but not
// yet resolved, plus the FIFO of delivered events. It is mutated only while
// the owning Conn holds its inner lock.
type inbound struct {
	lastSeen uint64 // highest 64-bit sequence number the server has acknowledged
	pending  []*requestState
	events   []eventEntry
}

func newInbound(eventHint int) *inbound {
	return &inbound{events: make([]eventEntry, 0, eventHint)}
}

// track records a newly sent request, returning its state for later lookup.
func (in *inbound) track(seq uint64, kind RequestKind) *requestState {
	rs := &requestState{seq: seq, kind: kind}
	in.pending = append(in.pending, rs)
	return rs
}

// extend maps a 16-bit short sequence to the full 64-bit sequence. It
// reconstructs a candidate using lastSeen's high bits and the new low 16
// bits; if that candidate would be a regression (the server wrapped its
// 16-bit counter since the last packet), the high bits are bumped by one
// cycle so the result is always >= lastSeen. The server delivers responses
// in non-decreasing sequence order, so this is unambiguous.
func (in *inbound) extend(s uint16) uint64 {
	const cycle = 1 << 16
	base := in.lastSeen &^ (cycle - 1)
	candidate := base | uint64(s)
	if candidate < in.lastSeen {
		candidate += cycle
	}
	in.lastSeen = candidate
	return candidate
}

// find returns the tracked request for seq, if any.
func (in *inbound) find(seq uint64) *requestState {
	for _, rs := range in.pending {
		if rs.seq == seq {
			return rs
		}
	}
	return nil
}

// remove drops a resolved request record from the pending table.
func (in *inbound) remove(rs *requestState) {
	for i, p := range in.pending {
		if p == rs {
			in.pending = append(in.pending[:i], in.pending[i+1:]...)
			return
		}
	}
}

// discard marks a pending request to be dropped silently (DiscardReplyAndError)
// or to drop its reply but still surface its error (DiscardReply).
func (in *inbound) discard(seq uint64, mode DiscardMode) {
	rs := in.find(seq)
	if rs == nil {
		return
	}
	m := mode
	rs.discard = &m
	if rs.reply != nil {
		in.resolveIfDiscardable(rs)
	}
}

func (in *inbound) resolveIfDiscardable(rs *requestState) {
	if rs.discard == nil {
		return
	}
	switch *rs.discard {
	case DiscardReplyAndError:
		in.remove(rs)
	case DiscardReply:
		if !rs.isError {
			in.remove(rs)
		}
	}
}

// dispatchError attaches a received error packet to its matching request (if
// any), per the discard policy, or queues it for a waiter.
func (in *inbound) dispatchError(seq uint64, raw []byte) {
	rs := in.find(seq)
	if rs == nil {
		return
	}
	rs.reply = raw
	rs.isError = true
	in.resolveIfDiscardable(rs)
}

// dispatchReply attaches a received reply packet to its matching request.
func (in *inbound) dispatchReply(seq uint64, raw []byte) {
	rs := in.find(seq)
	if rs == nil {
		return
	}
	rs.reply = raw
	rs.isError = false
}

// enqueueEvent appends a delivered event to the FIFO.
func (in *inbound) enqueueEvent(seq uint64, raw []byte) {
	in.events = append(in.events, eventEntry{seq: seq, raw: raw})
}

// popEvent pops the front of the event queue, if non-empty.
func (in *inbound) popEvent() (eventEntry, bool) {
	if len(in.events) == 0 {
		return eventEntry{}, false
	}
	e := in.events[0]
	in.events = in.events[1:]
	return e, true
}

// enqueuePacket classifies a raw packet by its first byte and attaches it to
// the right place: a pending request's reply/error slot, or the event queue.
func (in *inbound) enqueuePacket(raw []byte) {
	responseType := raw[0]

	if responseType == respKeymapNotify {
		in.enqueueEvent(in.lastSeen, raw)
		return
	}

	short, _, _ := wire.ParseInt[uint16](raw[2:4])
	seq := in.extend(short)

	switch responseType {
	case respError:
		in.dispatchError(seq, raw)
	case respReply:
		in.dispatchReply(seq, raw)
	default:
		in.enqueueEvent(seq, raw)
	}
}

// pollReplyOrError implements poll_for_reply_or_error: returns the raw
// reply/error bytes once either has arrived for seq.
func (in *inbound) pollReplyOrError(seq uint64) (raw []byte, ready bool) {
	rs := in.find(seq)
	if rs == nil || rs.reply == nil {
		return nil, false
	}
	rs.taken = true
	raw = rs.reply
	in.remove(rs)
	return raw, true
}

// pollReply implements poll_for_reply: three states, reply/no-reply/try-again.
type pollResult int

const (
	pollTryAgain pollResult = iota
	pollNoReply
	pollGotReply
)

func (in *inbound) pollReply(seq uint64) (raw []byte, result pollResult) {
	rs := in.find(seq)
	if rs == nil {
		return nil, pollNoReply
	}
	if rs.reply == nil {
		return nil, pollTryAgain
	}
	defer in.remove(rs)
	if rs.isError {
		return nil, pollNoReply
	}
	return rs.reply, pollGotReply
}

// pollCheck sends nothing itself (the fence request fenceSeq is sent by the
// caller) and relies on the precondition that seq is still pending, or
// already resolved, for it to behave correctly.
func (in *inbound) pollCheck(seq uint64, fenceSeq uint64) (raw []byte, result pollResult) {
	rs := in.find(seq)
	if rs == nil {
		// Already resolved with no error recorded.
		return nil, pollNoReply
	}
	fence := in.find(fenceSeq)
	if fence != nil && fence.reply == nil {
		return nil, pollTryAgain
	}
	// The fence's reply has arrived (or the fence itself is already gone,
	// meaning it was resolved by an earlier poll), so the server has
	// processed everything up to and including seq.
	if fence != nil {
		in.remove(fence)
	}
	if rs.reply != nil && rs.isError {
		raw = rs.reply
		in.remove(rs)
		return raw, pollGotReply
	}
	in.remove(rs)
	return nil, pollNoReply
}
