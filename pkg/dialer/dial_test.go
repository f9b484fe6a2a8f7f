package dialer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/getmockd/wshandshake/pkg/transport"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

func dialContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func wsURL(t *testing.T, srv *httptest.Server, path string) string {
	t.Helper()
	u := mustURL(t, srv.URL+path)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// writeText writes a single masked text frame.
func writeText(t *testing.T, w io.Writer, payload string) {
	t.Helper()
	require.Less(t, len(payload), 126)
	mask := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	frame := []byte{0x81, 0x80 | byte(len(payload))}
	frame = append(frame, mask[:]...)
	for i := 0; i < len(payload); i++ {
		frame = append(frame, payload[i]^mask[i%4])
	}
	_, err := w.Write(frame)
	require.NoError(t, err)
}

// readText reads a single unmasked text frame.
func readText(t *testing.T, r io.Reader) string {
	t.Helper()
	head := make([]byte, 2)
	_, err := io.ReadFull(r, head)
	require.NoError(t, err)
	require.Equal(t, byte(0x81), head[0])
	payload := make([]byte, head[1]&0x7f)
	_, err = io.ReadFull(r, payload)
	require.NoError(t, err)
	return string(payload)
}

func gorillaEcho(t *testing.T, upgrader websocket.Upgrader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.EnableWriteCompression(false)
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		assert.NoError(t, conn.WriteMessage(mt, msg))
		_, _, _ = conn.ReadMessage()
	})
}

// ============================================================================
// Servers
// ============================================================================

func TestDial_GorillaServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(gorillaEcho(t, websocket.Upgrader{
		Subprotocols:      []string{"chat"},
		EnableCompression: true,
		CheckOrigin:       func(*http.Request) bool { return true },
	}))
	t.Cleanup(srv.Close)

	out := DialOutcome(dialContext(t), Options{
		URL:          mustURL(t, wsURL(t, srv, "/echo")),
		Origin:       "http://example.com",
		Subprotocols: []string{"superchat", "chat"},
		Extensions:   []handshake.Extension{handshake.PerMessageDeflateOffer()},
	})
	require.NoError(t, out.Err)
	s := out.Stream
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, "chat", s.Subprotocol())
	params, ok := s.Deflate()
	require.True(t, ok)
	assert.True(t, params.ServerNoContextTakeover)
	assert.True(t, params.ClientNoContextTakeover)
	require.Len(t, out.Requests, 1)
	require.Len(t, out.Responses, 1)
	assert.Equal(t, 101, out.Responses[0].StatusCode)

	writeText(t, s, "hello")
	assert.Equal(t, "hello", readText(t, s))
}

func TestDial_CoderServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			Subprotocols:       []string{"chat"},
			InsecureSkipVerify: true,
			CompressionMode:    ws.CompressionDisabled,
		})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		typ, msg, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		assert.NoError(t, conn.Write(r.Context(), typ, msg))
		_, _, _ = conn.Read(r.Context())
	}))
	t.Cleanup(srv.Close)

	s, err := Dial(dialContext(t), Options{
		URL:          mustURL(t, wsURL(t, srv, "/")),
		Subprotocols: []string{"chat"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, "chat", s.Subprotocol())
	_, ok := s.Deflate()
	assert.False(t, ok)

	writeText(t, s, "ping")
	assert.Equal(t, "ping", readText(t, s))
}

func TestDial_PlainHTTPServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := Dial(dialContext(t), Options{URL: mustURL(t, wsURL(t, srv, "/"))})
	require.Error(t, err)
	assert.Equal(t, "Error during WebSocket handshake: Unexpected response code: 404", err.Error())
	assert.ErrorIs(t, err, handshake.ErrUnexpectedStatusCode)
}

func TestDial_BasicAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "foo" || pass != "bar" {
			w.Header().Set("WWW-Authenticate", `Basic realm="chat"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gorillaEcho(t, websocket.Upgrader{}).ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	u := mustURL(t, wsURL(t, srv, "/"))
	u.User = url.UserPassword("foo", "bar")
	out := DialOutcome(dialContext(t), Options{URL: u})
	require.NoError(t, out.Err)
	t.Cleanup(func() { _ = out.Stream.Close() })

	require.Len(t, out.Responses, 2)
	assert.Equal(t, 401, out.Responses[0].StatusCode)
	assert.Equal(t, 101, out.Responses[1].StatusCode)

	u.User = url.UserPassword("foo", "nope")
	_, err := Dial(dialContext(t), Options{URL: u})
	assert.ErrorIs(t, err, handshake.ErrNoCredentials)
}

// ============================================================================
// TLS
// ============================================================================

func TestDial_UntrustedCertificate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(gorillaEcho(t, websocket.Upgrader{}))
	t.Cleanup(srv.Close)
	target := mustURL(t, wsURL(t, srv, "/"))

	_, err := Dial(dialContext(t), Options{URL: target})
	require.Error(t, err)
	assert.Equal(t, "Error in connection establishment: net::ERR_CERT_AUTHORITY_INVALID", err.Error())
	assert.ErrorIs(t, err, handshake.ErrSSLFailure)

	var asked *CertificateInfo
	s, err := Dial(dialContext(t), Options{
		URL: target,
		Trust: func(_ context.Context, cert *CertificateInfo) bool {
			asked = cert
			return true
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NotNil(t, asked)
	assert.Equal(t, transport.CodeCertAuthorityInvalid, asked.Code)
	assert.True(t, asked.Chain[0].Equal(srv.Certificate()))

	writeText(t, s, "secure")
	assert.Equal(t, "secure", readText(t, s))
}

func TestDial_TimeoutWhileTrustFuncBlocks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(gorillaEcho(t, websocket.Upgrader{}))
	t.Cleanup(srv.Close)

	released := make(chan struct{})
	start := time.Now()
	_, err := Dial(dialContext(t), Options{
		URL:     mustURL(t, wsURL(t, srv, "/")),
		Timeout: 100 * time.Millisecond,
		Trust: func(ctx context.Context, _ *CertificateInfo) bool {
			defer close(released)
			select {
			case <-ctx.Done():
			case <-time.After(30 * time.Second):
			}
			return true
		},
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, handshake.ErrHandshakeTimeout)
	assert.Less(t, elapsed, 2*time.Second)
	waitClosed(t, released, "trust func released")
}

func TestDial_TrustedCertificate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(gorillaEcho(t, websocket.Upgrader{}))
	t.Cleanup(srv.Close)
	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())

	s, err := Dial(dialContext(t), Options{
		URL: mustURL(t, wsURL(t, srv, "/")),
		Transport: &transport.NetTransport{
			TLSConfig: &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

// ============================================================================
// Connection
// ============================================================================

func TestDial_ConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(dialContext(t), Options{URL: mustURL(t, "ws://"+addr+"/")})
	require.Error(t, err)
	assert.Equal(t, "Error in connection establishment: net::ERR_CONNECTION_REFUSED", err.Error())
	assert.ErrorIs(t, err, handshake.ErrConnection)
}

func TestDial_ContextCancelled(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(io.Discard, conn)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	out := DialOutcome(ctx, Options{URL: mustURL(t, "ws://"+ln.Addr().String()+"/")})
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Nil(t, out.Stream)
}

func TestDial_HandshakeTimeout(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(io.Discard, conn)
	}()

	_, err = Dial(dialContext(t), Options{
		URL:     mustURL(t, "ws://"+ln.Addr().String()+"/"),
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, MessageTimeout, err.Error())
	assert.ErrorIs(t, err, handshake.ErrHandshakeTimeout)
}
