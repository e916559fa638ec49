package conn

import (
	"io"

	"github.com/damianoneill/x11conn/wire"
)

// Response type bytes, read from offset 0 of every inbound packet.
const (
	respError             = 0
	respReply             = 1
	respKeymapNotify      = 11
	respGenericEvent      = 0x23
	respSentEventBit      = 0x80
	respSentGenericEvent  = respGenericEvent | respSentEventBit
	headerSize            = 32
)

// readPacket reads exactly one X11 inbound packet (fixed 32-byte header plus
// optional variable tail) from r. Only errors, events, and replies can be
// read this way; the initial setup reply is framed and consumed separately,
// before a Conn exists.
func readPacket(r io.Reader) ([]byte, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, newTransportError(err)
	}

	var tailWords uint32
	switch buf[0] {
	case respReply, respGenericEvent, respSentGenericEvent:
		tailWords, _, _ = wire.ParseInt[uint32](buf[4:8])
	default:
		// Errors, ordinary events, and keymap notify carry no tail.
	}

	tail := int(tailWords) * 4
	if tail == 0 {
		return buf, nil
	}

	full := make([]byte, headerSize+tail)
	copy(full, buf)
	if _, err := io.ReadFull(r, full[headerSize:]); err != nil {
		return nil, newTransportError(err)
	}
	return full, nil
}
