package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/wshandshake/internal/certgen"
)

func parseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// tlsServer accepts TLS connections with cert and drains them.
func tlsServer(t *testing.T, cert *certgen.Certificate) string {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert.TLS()},
		NextProtos:   []string{"http/1.1"},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(io.Discard, c)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestAddress(t *testing.T) {
	tests := []struct {
		raw        string
		wantAddr   string
		wantSecure bool
	}{
		{"ws://localhost/", "localhost:80", false},
		{"wss://localhost/", "localhost:443", true},
		{"ws://localhost:8080/", "localhost:8080", false},
		{"wss://[::1]:8443/", "[::1]:8443", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			addr, secure, err := Address(parseURL(t, tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, addr)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}

	_, _, err := Address(parseURL(t, "http://localhost/"))
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestConnect_Plain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	tr := &NetTransport{}
	conn, err := tr.Connect(context.Background(), Target{URL: parseURL(t, "ws://"+ln.Addr().String()+"/")})
	require.NoError(t, err)
	defer conn.Close()

	select {
	case c := <-accepted:
		_ = c.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted")
	}
}

func TestConnect_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = (&NetTransport{}).Connect(context.Background(), Target{URL: parseURL(t, "ws://"+addr+"/")})
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeConnectionRefused, ce.Code)
	assert.Equal(t, "net::ERR_CONNECTION_REFUSED", err.Error())
}

func TestConnect_BadScheme(t *testing.T) {
	_, err := (&NetTransport{}).Connect(context.Background(), Target{URL: parseURL(t, "ftp://localhost/")})
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeFailed, ce.Code)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestConnect_TLS(t *testing.T) {
	ca, err := certgen.SelfSigned(certgen.CA())
	require.NoError(t, err)

	trusted, err := ca.Issue(certgen.Localhost())
	require.NoError(t, err)

	wrongHost := certgen.Localhost()
	wrongHost.DNSNames = []string{"example.com"}
	wrongHost.IPAddresses = nil
	misnamed, err := ca.Issue(wrongHost)
	require.NoError(t, err)

	old := certgen.Localhost()
	old.NotBefore = time.Now().Add(-72 * time.Hour)
	old.ValidFor = time.Hour
	expired, err := ca.Issue(old)
	require.NoError(t, err)

	selfSigned, err := certgen.SelfSigned(certgen.Localhost())
	require.NoError(t, err)

	tests := []struct {
		name     string
		cert     *certgen.Certificate
		allowed  bool
		wantCode string
	}{
		{"trusted", trusted, false, ""},
		{"self signed", selfSigned, false, CodeCertAuthorityInvalid},
		{"self signed allowed", selfSigned, true, ""},
		{"wrong host", misnamed, false, CodeCertCommonNameInvalid},
		{"expired", expired, false, CodeCertDateInvalid},
		{"expired allowed", expired, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := tlsServer(t, tt.cert)
			target := Target{URL: parseURL(t, "wss://"+addr+"/")}
			if tt.allowed {
				target.AllowedCertificates = []*x509.Certificate{tt.cert.Leaf}
			}
			tr := &NetTransport{TLSConfig: &tls.Config{RootCAs: ca.Pool(), MinVersion: tls.VersionTLS12}}

			conn, err := tr.Connect(context.Background(), target)
			if tt.wantCode == "" {
				require.NoError(t, err)
				tc, ok := conn.(*tls.Conn)
				require.True(t, ok)
				assert.Equal(t, "http/1.1", tc.ConnectionState().NegotiatedProtocol)
				_ = conn.Close()
				return
			}

			require.Error(t, err)
			var certErr *CertificateError
			require.ErrorAs(t, err, &certErr)
			assert.Equal(t, tt.wantCode, certErr.Code)
			require.NotNil(t, certErr.Leaf())
			assert.Equal(t, tt.cert.Leaf.Raw, certErr.Leaf().Raw)
		})
	}
}

func TestConnect_TLSAgainstPlainServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = c.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		_ = c.Close()
	}()

	_, err = (&NetTransport{}).Connect(context.Background(), Target{URL: parseURL(t, "wss://"+ln.Addr().String()+"/")})
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeSSLProtocolError, ce.Code)
}

func TestFunc(t *testing.T) {
	called := false
	var tr Transport = Func(func(context.Context, Target) (net.Conn, error) {
		called = true
		return nil, &ConnectError{Code: CodeFailed}
	})
	_, err := tr.Connect(context.Background(), Target{})
	assert.True(t, called)
	assert.EqualError(t, err, CodeFailed)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestConnectCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, CodeConnectionRefused},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, CodeConnectionReset},
		{"unreachable", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, CodeAddressUnreachable},
		{"dns", &net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}, CodeNameNotResolved},
		{"dns timeout", &net.DNSError{Err: "timeout", Name: "slow", IsTimeout: true}, CodeConnectionTimedOut},
		{"deadline", context.DeadlineExceeded, CodeConnectionTimedOut},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutError{}}, CodeConnectionTimedOut},
		{"other", errors.New("boom"), CodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConnectCode(tt.err))
		})
	}
}

func TestCertificateCode(t *testing.T) {
	assert.Equal(t, CodeCertAuthorityInvalid, CertificateCode(x509.UnknownAuthorityError{}))
	assert.Equal(t, CodeCertCommonNameInvalid, CertificateCode(x509.HostnameError{Host: "x"}))
	assert.Equal(t, CodeCertDateInvalid, CertificateCode(x509.CertificateInvalidError{Reason: x509.Expired}))
	assert.Equal(t, CodeCertInvalid, CertificateCode(x509.CertificateInvalidError{Reason: x509.NotAuthorizedToSign}))
	assert.Equal(t, CodeCertInvalid, CertificateCode(errors.New("other")))
}

func TestVerifyChain_Empty(t *testing.T) {
	err := verifyChain(nil, nil, "localhost", nil)
	var certErr *CertificateError
	require.ErrorAs(t, err, &certErr)
	assert.Equal(t, CodeCertInvalid, certErr.Code)
	assert.Nil(t, certErr.Leaf())
}
