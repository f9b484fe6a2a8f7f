package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/getmockd/wshandshake/internal/certgen"
	"github.com/getmockd/wshandshake/pkg/auth"
	"github.com/getmockd/wshandshake/pkg/dialer"
	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/getmockd/wshandshake/pkg/logging"
	"github.com/getmockd/wshandshake/pkg/transport"
	"github.com/getmockd/wshandshake/pkg/trust"
)

// ErrNoURL is returned by DialOptions when no target URL is configured.
var ErrNoURL = errors.New("url is required")

// Logging returns the logging configuration writing to out.
func (c *Config) Logging(out io.Writer) logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.Log.Level),
		Format: logging.ParseFormat(c.Log.Format),
		Output: out,
	}
}

// DialOptions converts c into dialer options. Files named by c are read
// here.
func (c *Config) DialOptions(log *slog.Logger) (dialer.Options, error) {
	opts := dialer.Options{
		Origin:         c.Origin,
		UserAgent:      c.UserAgent,
		AcceptLanguage: c.AcceptLanguage,
		Subprotocols:   c.Subprotocols,
		MaxAuthRounds:  c.MaxAuthRounds,
		Limits:         handshake.Limits{MaxHeaderBytes: c.MaxHeaderBytes},
		Logger:         log,
	}

	if c.URL == "" {
		return opts, ErrNoURL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return opts, fmt.Errorf("invalid url: %w", err)
	}
	opts.URL = u

	for _, h := range c.Headers {
		opts.Header.Add(h.Name, h.Value)
	}

	for _, raw := range c.Extensions {
		exts, err := handshake.ParseExtensions(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid extension offer %q: %w", raw, err)
		}
		opts.Extensions = append(opts.Extensions, exts...)
	}
	if c.Deflate {
		opts.Extensions = append(opts.Extensions, handshake.PerMessageDeflateOffer())
	}

	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return opts, fmt.Errorf("invalid timeout: %w", err)
		}
		opts.Timeout = d
	}

	if c.CACertFile != "" {
		roots, err := readCerts(c.CACertFile)
		if err != nil {
			return opts, err
		}
		pool := x509.NewCertPool()
		for _, cert := range roots {
			pool.AddCert(cert)
		}
		opts.Transport = &transport.NetTransport{
			TLSConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
			Logger:    log,
		}
	}
	for _, path := range c.AllowedCertFiles {
		certs, err := readCerts(path)
		if err != nil {
			return opts, err
		}
		opts.AllowedCertificates = append(opts.AllowedCertificates, certs[0])
	}

	if len(c.Credentials) > 0 {
		static, err := auth.NewStaticStore(c.Credentials)
		if err != nil {
			return opts, fmt.Errorf("invalid credentials: %w", err)
		}
		opts.Credentials = auth.Chain{auth.URLStore{}, static}
	}

	if c.Trust != "" {
		policy, err := trust.Compile(c.Trust)
		if err != nil {
			return opts, err
		}
		opts.Trust = policy.TrustFunc(log)
	}
	return opts, nil
}

func readCerts(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	certs, err := certgen.DecodePEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return certs, nil
}
