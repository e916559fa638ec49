package conn

import (
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestExtendWithinCycle(t *testing.T) {
	in := newInbound(4)
	in.lastSeen = 10
	assert.Equal(t, uint64(11), in.extend(11))
	assert.Equal(t, uint64(200), in.extend(200))
}

func TestExtendWrapsForward(t *testing.T) {
	in := newInbound(4)
	in.lastSeen = 65535
	got := in.extend(1)
	assert.Equal(t, uint64(65537), got)
}

func TestExtendAcrossMultipleCycles(t *testing.T) {
	in := newInbound(4)
	in.lastSeen = 1<<16*3 + 40000
	got := in.extend(5)
	assert.Equal(t, uint64(1<<16*4+5), got)
}

func TestExtendMonotonicAcrossCalls(t *testing.T) {
	in := newInbound(4)
	seqs := []uint16{1, 2, 3, 65534, 65535, 0, 1, 2}
	var prev uint64
	for _, s := range seqs {
		got := in.extend(s)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
	assert.Equal(t, uint64(65538), prev)
}

func TestDiscardReplyAndErrorDropsBoth(t *testing.T) {
	in := newInbound(4)
	in.track(1, HasResponse)
	in.discard(1, DiscardReplyAndError)

	in.dispatchReply(1, []byte{1, 0, 1, 0})
	assert.Nil(t, in.find(1))

	in.track(2, IsVoid)
	in.discard(2, DiscardReplyAndError)

	in.dispatchError(2, []byte{0, 5, 2, 0})
	assert.Nil(t, in.find(2))
}

func TestDiscardReplyKeepsError(t *testing.T) {
	in := newInbound(4)
	in.track(1, HasResponse)
	in.discard(1, DiscardReply)

	in.dispatchError(1, []byte{0, 5, 1, 0})
	rs := in.find(1)
	assert.NotNil(t, rs)
	assert.True(t, rs.isError)
}

func TestDiscardReplyDropsSuccessfulReply(t *testing.T) {
	in := newInbound(4)
	in.track(1, HasResponse)
	in.discard(1, DiscardReply)

	in.dispatchReply(1, []byte{1, 0, 1, 0})
	assert.Nil(t, in.find(1))
}

func TestPollReplyOrError(t *testing.T) {
	in := newInbound(4)
	in.track(7, HasResponse)

	_, ready := in.pollReplyOrError(7)
	assert.False(t, ready)

	in.dispatchReply(7, []byte{1, 0, 7, 0})
	raw, ready := in.pollReplyOrError(7)
	assert.True(t, ready)
	assert.Equal(t, byte(1), raw[0])
	assert.Nil(t, in.find(7))
}

func TestEventQueueFIFO(t *testing.T) {
	in := newInbound(4)
	in.enqueueEvent(1, []byte{2})
	in.enqueueEvent(2, []byte{3})

	e, ok := in.popEvent()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), e.seq)

	e, ok = in.popEvent()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), e.seq)

	_, ok = in.popEvent()
	assert.False(t, ok)
}

func TestEnqueuePacketClassifiesByType(t *testing.T) {
	in := newInbound(4)
	in.track(1, HasResponse)

	reply := make([]byte, 32)
	reply[0] = respReply
	reply[2], reply[3] = 1, 0
	in.enqueuePacket(reply)

	rs := in.find(1)
	assert.NotNil(t, rs)
	assert.False(t, rs.isError)
}

func TestEnqueuePacketKeymapNotifyHasNoSequence(t *testing.T) {
	in := newInbound(4)
	packet := make([]byte, 32)
	packet[0] = respKeymapNotify
	in.enqueuePacket(packet)

	e, ok := in.popEvent()
	assert.True(t, ok)
	assert.Equal(t, byte(respKeymapNotify), e.raw[0])
}
