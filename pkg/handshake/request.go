package handshake

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // RFC 6455 mandates SHA-1 for the accept hash
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

// Version is the only Sec-WebSocket-Version this client speaks.
const Version = "13"

// acceptGUID is appended to the key before hashing (RFC 6455 section 1.3).
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// nonceSize is the number of random bytes in Sec-WebSocket-Key.
const nonceSize = 16

// Builder produces opening-handshake requests. A Builder is reusable; every
// call to Build draws a fresh nonce.
type Builder struct {
	// Origin is sent in the Origin header when non-empty.
	Origin string

	// UserAgent is sent in the User-Agent header when non-empty.
	UserAgent string

	// AcceptLanguage is sent in the Accept-Language header when non-empty.
	AcceptLanguage string

	// Header holds extra fields appended before the Sec-WebSocket-* fields.
	Header Header

	// Subprotocols are the candidate sub-protocols in preference order.
	Subprotocols []string

	// Extensions are the extension offers in preference order.
	Extensions []Extension

	// Rand is the nonce source. Defaults to crypto/rand.
	Rand io.Reader
}

// Request is an immutable opening-handshake request.
type Request struct {
	id           string
	url          *url.URL
	header       Header
	key          string
	subprotocols []string
	extensions   []Extension
	created      time.Time
}

// CheckURL reports whether u is a usable WebSocket target.
func CheckURL(u *url.URL) error {
	if u == nil {
		return &Error{Kind: KindInvalidRequest, Detail: "WebSocket URL is required"}
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("The URL's scheme must be either 'ws' or 'wss'. '%s' is not allowed.", u.Scheme)}
	}
	if u.Hostname() == "" {
		return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("The URL '%s' has no host", u.Redacted())}
	}
	if u.Fragment != "" {
		return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("The URL contains a fragment identifier ('%s'). Fragment identifiers are not allowed in WebSocket URLs.", u.Fragment)}
	}
	return nil
}

// Check validates the builder inputs without drawing a nonce.
func (b *Builder) Check() error {
	seen := make(map[string]bool, len(b.Subprotocols))
	for _, p := range b.Subprotocols {
		if !isToken(p) {
			return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("The subprotocol '%s' is invalid.", p)}
		}
		if seen[p] {
			return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("The subprotocol '%s' is duplicated.", p)}
		}
		seen[p] = true
	}
	for _, e := range b.Extensions {
		if !isToken(e.Name) {
			return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("The extension '%s' is invalid.", e.Name)}
		}
	}
	return nil
}

// Build creates a request for u. When authorization is non-empty it is sent
// as the Authorization header. User info in u is never sent on the wire.
func (b *Builder) Build(u *url.URL, authorization string) (*Request, error) {
	if err := CheckURL(u); err != nil {
		return nil, err
	}
	if err := b.Check(); err != nil {
		return nil, err
	}

	key, err := b.newKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate Sec-WebSocket-Key: %w", err)
	}

	target := *u
	target.User = nil

	var h Header
	h.Add(HeaderHost, target.Host)
	h.Add(HeaderConnection, "Upgrade")
	h.Add("Pragma", "no-cache")
	h.Add("Cache-Control", "no-cache")
	if authorization != "" {
		h.Add(HeaderAuthorization, authorization)
	}
	h.Add(HeaderUpgrade, "websocket")
	if b.Origin != "" {
		h.Add(HeaderOrigin, b.Origin)
	}
	h.Add(HeaderSecWebSocketVersion, Version)
	if b.UserAgent != "" {
		h.Add("User-Agent", b.UserAgent)
	}
	if b.AcceptLanguage != "" {
		h.Add("Accept-Language", b.AcceptLanguage)
	}
	for _, f := range b.Header.fields {
		if reservedRequestHeader(f.Name) {
			continue
		}
		h.Add(f.Name, f.Value)
	}
	h.Add(HeaderSecWebSocketKey, key)
	if len(b.Extensions) > 0 {
		h.Add(HeaderSecWebSocketExtensions, FormatExtensions(b.Extensions))
	}
	if len(b.Subprotocols) > 0 {
		h.Add(HeaderSecWebSocketProtocol, strings.Join(b.Subprotocols, ", "))
	}

	return &Request{
		id:           uuid.NewString(),
		url:          &target,
		header:       h,
		key:          key,
		subprotocols: append([]string(nil), b.Subprotocols...),
		extensions:   cloneExtensions(b.Extensions),
		created:      time.Now(),
	}, nil
}

func (b *Builder) newKey() (string, error) {
	r := b.Rand
	if r == nil {
		r = rand.Reader
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(nonce), nil
}

// reservedRequestHeader reports whether name is controlled by the builder
// and therefore cannot be overridden through Builder.Header.
func reservedRequestHeader(name string) bool {
	switch strings.ToLower(name) {
	case "host", "connection", "upgrade", "authorization",
		"sec-websocket-key", "sec-websocket-version",
		"sec-websocket-extensions", "sec-websocket-protocol":
		return true
	}
	return false
}

// ID returns the unique identifier of this request.
func (r *Request) ID() string { return r.id }

// URL returns a copy of the target URL without user info.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Key returns the Sec-WebSocket-Key value.
func (r *Request) Key() string { return r.key }

// ExpectedAccept returns the Sec-WebSocket-Accept value a conforming server
// must send back for this request.
func (r *Request) ExpectedAccept() string { return AcceptKey(r.key) }

// Header returns a copy of the request header.
func (r *Request) Header() Header { return r.header.Clone() }

// Subprotocols returns the requested sub-protocols.
func (r *Request) Subprotocols() []string { return append([]string(nil), r.subprotocols...) }

// Extensions returns the extension offers.
func (r *Request) Extensions() []Extension { return cloneExtensions(r.extensions) }

// Bytes renders the request in wire form.
func (r *Request) Bytes() []byte {
	b := make([]byte, 0, 512)
	b = append(b, "GET "...)
	b = append(b, r.url.RequestURI()...)
	b = append(b, " HTTP/1.1\r\n"...)
	b = r.header.appendTo(b)
	b = append(b, "\r\n"...)
	return b
}

// Info returns the request metadata reported to observers.
func (r *Request) Info() *RequestInfo {
	return &RequestInfo{
		ID:      r.id,
		URL:     r.URL(),
		Headers: r.header.Fields(),
		Time:    r.created,
	}
}

// AcceptKey computes base64(SHA-1(key ++ GUID)).
func AcceptKey(key string) string {
	h := sha1.New() //nolint:gosec // see import
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}
