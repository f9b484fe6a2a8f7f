package dialer

import (
	"context"
	"crypto/x509"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/getmockd/wshandshake/pkg/auth"
	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/getmockd/wshandshake/pkg/transport"
)

// DefaultTimeout bounds a whole handshake, including auth retries and trust
// decisions.
const DefaultTimeout = 240 * time.Second

// DefaultMaxAuthRounds is the number of 401 responses answered with
// credentials before failing.
const DefaultMaxAuthRounds = 1

// TrustFunc decides whether to proceed past an untrusted certificate. It is
// used by Dial, which runs it on its own goroutine; ctx is cancelled once the
// handshake ends, for example when it times out while waiting for an answer.
type TrustFunc func(ctx context.Context, cert *CertificateInfo) bool

// Options configures a Coordinator.
type Options struct {
	URL *url.URL

	Origin         string
	UserAgent      string
	AcceptLanguage string
	Header         handshake.Header
	Subprotocols   []string
	Extensions     []handshake.Extension

	// Transport defaults to a transport.NetTransport using Logger.
	Transport transport.Transport

	// AllowedCertificates are leaf certificates accepted up front.
	AllowedCertificates []*x509.Certificate

	// Credentials answers 401 challenges. Defaults to the URL's user info.
	Credentials auth.Store

	// Authorizer builds Authorization values. Defaults to a zero Authorizer.
	Authorizer *auth.Authorizer

	// MaxAuthRounds defaults to DefaultMaxAuthRounds.
	MaxAuthRounds int

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// Timer defaults to NewTimer().
	Timer Timer

	Limits handshake.Limits

	// Trust is consulted by Dial for certificate errors. Nil aborts.
	Trust TrustFunc

	Recorder Recorder
	Logger   *slog.Logger

	// Rand is the nonce source. Defaults to crypto/rand.
	Rand io.Reader
}

func (o Options) withDefaults() Options {
	if o.Transport == nil {
		o.Transport = &transport.NetTransport{Logger: o.Logger}
	}
	if o.Credentials == nil {
		o.Credentials = auth.URLStore{}
	}
	if o.Authorizer == nil {
		o.Authorizer = &auth.Authorizer{}
	}
	if o.MaxAuthRounds <= 0 {
		o.MaxAuthRounds = DefaultMaxAuthRounds
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Timer == nil {
		o.Timer = NewTimer()
	}
	return o
}

func (o Options) builder() *handshake.Builder {
	return &handshake.Builder{
		Origin:         o.Origin,
		UserAgent:      o.UserAgent,
		AcceptLanguage: o.AcceptLanguage,
		Header:         o.Header,
		Subprotocols:   o.Subprotocols,
		Extensions:     o.Extensions,
		Rand:           o.Rand,
	}
}
