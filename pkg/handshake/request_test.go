package handshake

import (
	"bytes"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNonce = "the sample nonce"

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func sampleBuilder() *Builder {
	return &Builder{
		Origin: "http://localhost",
		Rand:   bytes.NewReader([]byte(sampleNonce)),
	}
}

func TestAcceptKey(t *testing.T) {
	// RFC 6455 section 1.3.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestBuild_MinimalRequest(t *testing.T) {
	req, err := sampleBuilder().Build(mustURL(t, "ws://localhost/"), "")
	require.NoError(t, err)

	assert.Equal(t, "dGhlIHNhbXBsZSBub25jZQ==", req.Key())
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", req.ExpectedAccept())
	assert.NotEmpty(t, req.ID())

	want := "GET / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Connection: Upgrade\r\n" +
		"Pragma: no-cache\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Upgrade: websocket\r\n" +
		"Origin: http://localhost\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"\r\n"
	assert.Equal(t, want, string(req.Bytes()))
}

func TestBuild_FullRequestHeaderOrder(t *testing.T) {
	b := sampleBuilder()
	b.UserAgent = "wshandshake-test"
	b.AcceptLanguage = "en-US"
	b.Header.Add("X-Trace", "abc")
	b.Header.Add("Sec-WebSocket-Key", "ignored")
	b.Subprotocols = []string{"chatv11.chromium.org", "chatv20.chromium.org"}
	b.Extensions = []Extension{PerMessageDeflateOffer()}

	req, err := b.Build(mustURL(t, "wss://example.com:8443/chat?room=1"), "Basic Zm9vOmJhcg==")
	require.NoError(t, err)

	var names []string
	for _, f := range req.Header().Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"Host", "Connection", "Pragma", "Cache-Control", "Authorization", "Upgrade",
		"Origin", "Sec-WebSocket-Version", "User-Agent", "Accept-Language", "X-Trace",
		"Sec-WebSocket-Key", "Sec-WebSocket-Extensions", "Sec-WebSocket-Protocol",
	}, names)

	h := req.Header()
	assert.Equal(t, "example.com:8443", h.Get("host"))
	assert.Equal(t, 1, h.Count(HeaderSecWebSocketKey))
	assert.Equal(t, "permessage-deflate; client_max_window_bits", h.Get(HeaderSecWebSocketExtensions))
	assert.Equal(t, "chatv11.chromium.org, chatv20.chromium.org", h.Get(HeaderSecWebSocketProtocol))
	assert.True(t, strings.HasPrefix(string(req.Bytes()), "GET /chat?room=1 HTTP/1.1\r\n"))
}

func TestBuild_StripsUserInfo(t *testing.T) {
	req, err := sampleBuilder().Build(mustURL(t, "ws://foo:bar@localhost:8080/"), "")
	require.NoError(t, err)

	assert.Nil(t, req.URL().User)
	assert.Equal(t, "localhost:8080", req.Header().Get(HeaderHost))
	assert.NotContains(t, string(req.Bytes()), "foo")
	assert.Nil(t, req.Info().URL.User)
}

func TestBuild_FreshNonceEachCall(t *testing.T) {
	b := &Builder{}
	u := mustURL(t, "ws://localhost/")

	r1, err := b.Build(u, "")
	require.NoError(t, err)
	r2, err := b.Build(u, "")
	require.NoError(t, err)

	assert.NotEqual(t, r1.Key(), r2.Key())
	assert.NotEqual(t, r1.ID(), r2.ID())
	assert.Len(t, r1.Key(), 24)
}

func TestBuild_ShortRandFails(t *testing.T) {
	b := &Builder{Rand: bytes.NewReader([]byte("short"))}
	_, err := b.Build(mustURL(t, "ws://localhost/"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sec-WebSocket-Key")
}

func TestCheckURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"ws", "ws://localhost/", ""},
		{"wss with port", "wss://localhost:443/path", ""},
		{"http scheme", "http://localhost/", "'http' is not allowed"},
		{"no host", "ws:///path", "has no host"},
		{"fragment", "ws://localhost/#frag", "Fragment identifiers are not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckURL(mustURL(t, tt.raw))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.ErrorIs(t, CheckURL(nil), ErrInvalidRequest)
}

func TestBuilderCheck(t *testing.T) {
	tests := []struct {
		name    string
		b       Builder
		wantErr string
	}{
		{"empty", Builder{}, ""},
		{"valid protocols", Builder{Subprotocols: []string{"chat", "superchat"}}, ""},
		{"empty protocol", Builder{Subprotocols: []string{""}}, "The subprotocol '' is invalid."},
		{"protocol with space", Builder{Subprotocols: []string{"a b"}}, "The subprotocol 'a b' is invalid."},
		{"protocol with comma", Builder{Subprotocols: []string{"a,b"}}, "The subprotocol 'a,b' is invalid."},
		{"duplicate protocol", Builder{Subprotocols: []string{"chat", "chat"}}, "The subprotocol 'chat' is duplicated."},
		{"bad extension", Builder{Extensions: []Extension{{Name: "x y"}}}, "The extension 'x y' is invalid."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Check()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
			assert.Equal(t, KindInvalidRequest, KindOf(err))
		})
	}
}

func TestRequestInfo(t *testing.T) {
	req, err := sampleBuilder().Build(mustURL(t, "ws://localhost/echo"), "")
	require.NoError(t, err)

	info := req.Info()
	assert.Equal(t, req.ID(), info.ID)
	assert.Equal(t, "ws://localhost/echo", info.URL.String())
	assert.False(t, info.Time.IsZero())
	require.NotEmpty(t, info.Headers)
	assert.Equal(t, Field{Name: "Host", Value: "localhost"}, info.Headers[0])

	// Mutating the info must not leak into the request.
	info.Headers[0].Value = "evil"
	assert.Equal(t, "localhost", req.Header().Get(HeaderHost))
}
