package dialer

import (
	"bufio"
	"net"

	"github.com/getmockd/wshandshake/pkg/handshake"
)

// Stream is an established WebSocket byte stream positioned just after the
// response head. Frames are not interpreted.
type Stream struct {
	conn       net.Conn
	br         *bufio.Reader
	negotiated *handshake.Negotiated
	request    *handshake.RequestInfo
	response   *handshake.ResponseInfo
}

// Read reads bytes the server sent after the handshake, starting with any
// that arrived together with the response head.
func (s *Stream) Read(p []byte) (int, error) {
	if s.br != nil && s.br.Buffered() > 0 {
		return s.br.Read(p)
	}
	return s.conn.Read(p)
}

// Write writes raw bytes to the server.
func (s *Stream) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }

// Conn returns the underlying connection. Reading from it directly skips
// bytes still buffered by the stream; see Buffered.
func (s *Stream) Conn() net.Conn { return s.conn }

// Buffered returns the number of post-handshake bytes already read from the
// connection.
func (s *Stream) Buffered() int {
	if s.br == nil {
		return 0
	}
	return s.br.Buffered()
}

// Subprotocol returns the accepted sub-protocol, or "".
func (s *Stream) Subprotocol() string { return s.negotiated.Subprotocol }

// Extension returns the accepted extension agreement, or nil.
func (s *Stream) Extension() *handshake.Agreement { return s.negotiated.Extension }

// Deflate returns the negotiated permessage-deflate parameters.
func (s *Stream) Deflate() (handshake.DeflateParams, bool) {
	if s.negotiated.Extension == nil {
		return handshake.DeflateParams{}, false
	}
	return s.negotiated.Extension.Deflate, true
}

// Request returns the metadata of the request that succeeded.
func (s *Stream) Request() *handshake.RequestInfo { return s.request }

// Response returns the metadata of the 101 response.
func (s *Stream) Response() *handshake.ResponseInfo { return s.response }
