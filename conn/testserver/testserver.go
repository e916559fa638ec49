// Package testserver provides an in-memory fake X11 server for exercising
// the conn package without a real display: an net.Pipe stands in for the
// socket, and the test drives canned replies, errors, and events directly.
package testserver

import (
	"io"
	"net"

	"github.com/damianoneill/x11conn/wire"
)

// Server is the server half of an in-memory X11 connection.
type Server struct {
	conn net.Conn
}

// New returns a connected client/server pair. client is the transport to
// hand to conn.New; srv lets the test read requests and script responses.
func New() (client io.ReadWriteCloser, srv *Server) {
	c, s := net.Pipe()
	return c, &Server{conn: s}
}

// Close closes the server's half of the pipe.
func (s *Server) Close() error { return s.conn.Close() }

// Request is one client request frame. It carries no sequence number (the
// wire format has none for requests), so readers inspect Opcode/Data/Body
// to decide how to respond.
type Request struct {
	Opcode byte
	Data   byte
	Body   []byte // the full frame, header included
}

// ReadRequest reads exactly one client request frame, following normal or
// big-request length framing the same way conn's outbound does.
func (s *Server) ReadRequest() (Request, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(s.conn, hdr); err != nil {
		return Request{}, err
	}

	words, _, _ := wire.ParseInt[uint16](hdr[2:4])
	if words != 0 {
		total := int(words) * 4
		rest := make([]byte, total-4)
		if _, err := io.ReadFull(s.conn, rest); err != nil {
			return Request{}, err
		}
		return Request{Opcode: hdr[0], Data: hdr[1], Body: append(hdr, rest...)}, nil
	}

	// Big-request extended form: the next 4 bytes hold the real word count.
	ext := make([]byte, 4)
	if _, err := io.ReadFull(s.conn, ext); err != nil {
		return Request{}, err
	}
	bigWords, _, _ := wire.ParseInt[uint32](ext)
	total := int(bigWords) * 4
	rest := make([]byte, total-8)
	if _, err := io.ReadFull(s.conn, rest); err != nil {
		return Request{}, err
	}
	full := append(hdr, ext...)
	full = append(full, rest...)
	return Request{Opcode: hdr[0], Data: hdr[1], Body: full}, nil
}

// The packet builders below take the 16-bit sequence number to embed
// explicitly: the server learns "which request is this" purely by counting
// ReadRequest calls (one per request, in order), so tests track their own
// counters.

// Reply builds a 32-byte-plus-tail reply packet. tail must already be a
// multiple of 4 bytes; PadTo4 in the wire package helps callers that have an
// arbitrary-length payload.
func Reply(seq uint16, fixed [24]byte, tail []byte) []byte {
	buf := make([]byte, 0, 32+len(tail))
	buf = append(buf, 1, 0) // response type 1 (Reply), unused detail byte
	buf = wire.PutInt(buf, seq)
	buf = wire.PutInt(buf, uint32(len(tail)/4))
	buf = append(buf, fixed[:]...)
	buf = append(buf, tail...)
	return buf
}

// Error builds a 32-byte error packet.
func Error(seq uint16, code uint8) []byte {
	buf := make([]byte, 32)
	buf[0] = 0 // response type 0 (Error)
	buf[1] = code
	copy(buf[2:4], []byte{byte(seq), byte(seq >> 8)})
	return buf
}

// Event builds a 32-byte core event packet (code < 0x80, no "sent" bit).
func Event(code uint8, seq uint16) []byte {
	buf := make([]byte, 32)
	buf[0] = code
	copy(buf[2:4], []byte{byte(seq), byte(seq >> 8)})
	return buf
}

// BigRequestsEnableReply builds the reply to a BigRequests.Enable request:
// maximum_request_length sits at bytes 8-12, in 4-byte words.
func BigRequestsEnableReply(seq uint16, maxWords uint32) []byte {
	var fixed [24]byte
	copy(fixed[0:4], wire.PutInt(nil, maxWords))
	return Reply(seq, fixed, nil)
}

// XIDRangeReply builds the reply to an XC-MISC GetXIDRange request:
// start_id at bytes 8-12, count at bytes 12-16.
func XIDRangeReply(seq uint16, startID, count uint32) []byte {
	var fixed [24]byte
	copy(fixed[0:4], wire.PutInt(nil, startID))
	copy(fixed[4:8], wire.PutInt(nil, count))
	return Reply(seq, fixed, nil)
}

// Write writes a fully-formed packet (as built by Reply/Error/Event) to the
// client.
func (s *Server) Write(packet []byte) error {
	_, err := s.conn.Write(packet)
	return err
}
