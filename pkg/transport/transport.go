package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"

	"github.com/getmockd/wshandshake/pkg/logging"
)

// Target is what to connect to.
type Target struct {
	URL *url.URL

	// AllowedCertificates are leaf certificates accepted without
	// verification, typically because the user chose to proceed past a
	// certificate error.
	AllowedCertificates []*x509.Certificate
}

// Transport establishes connections.
type Transport interface {
	Connect(ctx context.Context, target Target) (net.Conn, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, target Target) (net.Conn, error)

// Connect calls f.
func (f Func) Connect(ctx context.Context, target Target) (net.Conn, error) { return f(ctx, target) }

// NetTransport dials TCP and, for wss, performs the TLS handshake with its
// own chain verification.
type NetTransport struct {
	// Dialer defaults to a zero net.Dialer.
	Dialer *net.Dialer

	// TLSConfig is cloned for every wss connection. RootCAs nil means the
	// system pool. InsecureSkipVerify is ignored.
	TLSConfig *tls.Config

	Logger *slog.Logger
}

// Address returns the host:port to dial for u and whether TLS is required.
func Address(u *url.URL) (addr string, secure bool, err error) {
	var port string
	switch u.Scheme {
	case "ws":
		port = "80"
	case "wss":
		port, secure = "443", true
	default:
		return "", false, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if p := u.Port(); p != "" {
		port = p
	}
	return net.JoinHostPort(u.Hostname(), port), secure, nil
}

// Connect implements Transport.
func (t *NetTransport) Connect(ctx context.Context, target Target) (net.Conn, error) {
	log := logging.OrNop(t.Logger)

	addr, secure, err := Address(target.URL)
	if err != nil {
		return nil, &ConnectError{Code: CodeFailed, Err: err}
	}

	d := t.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	log.Debug("dialing", "addr", addr, "tls", secure)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		code := ConnectCode(err)
		log.Debug("dial failed", "addr", addr, "code", code, logging.KeyError, err)
		return nil, &ConnectError{Code: code, Err: err}
	}
	if !secure {
		return conn, nil
	}

	tc := tls.Client(conn, t.clientConfig(target))
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		var certErr *CertificateError
		if errors.As(err, &certErr) {
			log.Debug("certificate rejected", "addr", addr, "code", certErr.Code, logging.KeyError, certErr.Err)
			return nil, certErr
		}
		code := CodeSSLProtocolError
		if ctx.Err() != nil {
			code = ConnectCode(ctx.Err())
		}
		log.Debug("tls handshake failed", "addr", addr, "code", code, logging.KeyError, err)
		return nil, &ConnectError{Code: code, Err: err}
	}
	return tc, nil
}

func (t *NetTransport) clientConfig(target Target) *tls.Config {
	var cfg *tls.Config
	if t.TLSConfig != nil {
		cfg = t.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = target.URL.Hostname()
	}
	cfg.NextProtos = []string{"http/1.1"}

	roots, serverName, allowed := cfg.RootCAs, cfg.ServerName, target.AllowedCertificates
	cfg.InsecureSkipVerify = true //nolint:gosec // verified in VerifyConnection
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		return verifyChain(cs.PeerCertificates, roots, serverName, allowed)
	}
	return cfg
}

func verifyChain(chain []*x509.Certificate, roots *x509.CertPool, serverName string, allowed []*x509.Certificate) error {
	if len(chain) == 0 {
		return &CertificateError{Code: CodeCertInvalid, Err: errors.New("server sent no certificate")}
	}
	leaf := chain[0]
	for _, a := range allowed {
		if a != nil && bytes.Equal(a.Raw, leaf.Raw) {
			return nil
		}
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		DNSName:       serverName,
	})
	if err != nil {
		return &CertificateError{Code: CertificateCode(err), Chain: chain, Err: err}
	}
	return nil
}
