package conn

import (
	"sync"
	"testing"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/x11conn/conn/testserver"
)

// echoRequest builds a minimal 4-byte (one word) request with the given
// major opcode and no request-specific data.
func echoRequest(opcode byte) []byte {
	return []byte{opcode, 0, 1, 0}
}

// The X11 wire protocol never embeds a client-assigned sequence number in a
// request: the server assigns one implicitly, by counting requests received,
// one-indexed. A fake server that processes requests strictly in the order
// it reads them can therefore always reconstruct the right sequence number
// from a simple per-connection counter.

func TestSendRequestWithReplyRoundTrip(t *testing.T) {
	client, srv := testserver.New()
	defer srv.Close()

	c, err := New(client, Setup{ResourceIDMask: 0xFFFF, MaximumRequestLength: 0xFFFF})
	assert.NoError(t, err)
	defer c.Close()

	go func() {
		req, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.Equal(t, byte(20), req.Opcode) // arbitrary opcode

		var fixed [24]byte
		fixed[0] = 9 // arbitrary payload byte the test asserts on
		assert.NoError(t, srv.Write(testserver.Reply(1, fixed, nil)))
	}()

	cookie, err := c.SendRequestWithReply([][]byte{echoRequest(20)}, nil)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), cookie.Sequence())

	raw, err := c.WaitForReplyOrError(cookie.Sequence())
	assert.NoError(t, err)
	assert.Equal(t, byte(9), raw[8])
}

func TestWaitForReplyOrErrorReturnsX11Error(t *testing.T) {
	client, srv := testserver.New()
	defer srv.Close()

	c, err := New(client, Setup{ResourceIDMask: 0xFFFF, MaximumRequestLength: 0xFFFF})
	assert.NoError(t, err)
	defer c.Close()

	go func() {
		_, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.NoError(t, srv.Write(testserver.Error(1, 8)))
	}()

	cookie, err := c.SendRequestWithReply([][]byte{echoRequest(55)}, nil)
	assert.NoError(t, err)

	_, err = c.WaitForReplyOrError(cookie.Sequence())
	assert.Error(t, err)
	x11err, ok := err.(*X11Error)
	assert.True(t, ok)
	assert.Equal(t, uint8(8), x11err.ErrorCode())
}

func TestConcurrentWaitersGetMatchingReplies(t *testing.T) {
	client, srv := testserver.New()
	defer srv.Close()

	c, err := New(client, Setup{ResourceIDMask: 0xFFFF, MaximumRequestLength: 0xFFFF})
	assert.NoError(t, err)
	defer c.Close()

	const n = 3
	go func() {
		for i := 0; i < n; i++ {
			req, err := srv.ReadRequest()
			if err != nil {
				return
			}
			var fixed [24]byte
			fixed[0] = req.Opcode
			if err := srv.Write(testserver.Reply(uint16(i+1), fixed, nil)); err != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	results := make([]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opcode := byte(30 + i)
			cookie, err := c.SendRequestWithReply([][]byte{echoRequest(opcode)}, nil)
			assert.NoError(t, err)
			raw, err := c.WaitForReplyOrError(cookie.Sequence())
			assert.NoError(t, err)
			results[i] = raw[8]
		}(i)
	}
	wg.Wait()

	seen := map[byte]bool{}
	for i := 0; i < n; i++ {
		seen[results[i]] = true
	}
	for i := 0; i < n; i++ {
		assert.True(t, seen[byte(30+i)])
	}
}

func TestMaximumRequestBytesNegotiation(t *testing.T) {
	client, srv := testserver.New()
	defer srv.Close()

	c, err := New(client, Setup{ResourceIDMask: 0xFFFF, MaximumRequestLength: 0xFFFF}, WithBigRequestsOpcode(130))
	assert.NoError(t, err)
	defer c.Close()

	go func() {
		req, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.Equal(t, byte(130), req.Opcode)
		assert.NoError(t, srv.Write(testserver.BigRequestsEnableReply(1, 1<<20)))
	}()

	got := c.MaximumRequestBytes()
	assert.Equal(t, (1<<20)*4, got)
}

func TestGenerateIDRefillsOnExhaustion(t *testing.T) {
	client, srv := testserver.New()
	defer srv.Close()

	// mask=1 grants exactly two IDs (0 and 1) before the range is exhausted.
	c, err := New(client, Setup{ResourceIDBase: 0, ResourceIDMask: 1}, WithXCMiscOpcode(140))
	assert.NoError(t, err)
	defer c.Close()

	first, err := c.GenerateID()
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), first)

	second, err := c.GenerateID()
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), second)

	go func() {
		req, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.Equal(t, byte(140), req.Opcode)
		assert.NoError(t, srv.Write(testserver.XIDRangeReply(1, 0x10000, 16)))
	}()

	third, err := c.GenerateID()
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x10000), third)
}

func TestCheckForErrorFindsErrorBehindFence(t *testing.T) {
	client, srv := testserver.New()
	defer srv.Close()

	c, err := New(client, Setup{ResourceIDMask: 0xFFFF, MaximumRequestLength: 0xFFFF})
	assert.NoError(t, err)
	defer c.Close()

	cookie, err := c.SendRequestWithoutReply([][]byte{echoRequest(70)}, nil)
	assert.NoError(t, err)

	go func() {
		req, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.Equal(t, byte(70), req.Opcode)

		// CheckForError flushes both requests in one write; net.Pipe does not
		// buffer, so the fence must be read before anything is written back.
		fence, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.Equal(t, byte(43), fence.Opcode) // GetInputFocus

		assert.NoError(t, srv.Write(testserver.Error(1, 3)))
		var fixed [24]byte
		assert.NoError(t, srv.Write(testserver.Reply(2, fixed, nil)))
	}()

	x11err, err := c.CheckForError(cookie.Sequence())
	assert.NoError(t, err)
	assert.NotNil(t, x11err)
	assert.Equal(t, uint8(3), x11err.ErrorCode())
}

func TestCheckForErrorReturnsNilWhenNoError(t *testing.T) {
	client, srv := testserver.New()
	defer srv.Close()

	c, err := New(client, Setup{ResourceIDMask: 0xFFFF, MaximumRequestLength: 0xFFFF})
	assert.NoError(t, err)
	defer c.Close()

	cookie, err := c.SendRequestWithoutReply([][]byte{echoRequest(71)}, nil)
	assert.NoError(t, err)

	go func() {
		req, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.Equal(t, byte(71), req.Opcode)

		fence, err := srv.ReadRequest()
		assert.NoError(t, err)
		assert.Equal(t, byte(43), fence.Opcode)
		var fixed [24]byte
		assert.NoError(t, srv.Write(testserver.Reply(2, fixed, nil)))
	}()

	x11err, err := c.CheckForError(cookie.Sequence())
	assert.NoError(t, err)
	assert.Nil(t, x11err)
}
