package transport

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

// Connect failure codes.
const (
	CodeConnectionRefused  = "net::ERR_CONNECTION_REFUSED"
	CodeConnectionTimedOut = "net::ERR_CONNECTION_TIMED_OUT"
	CodeNameNotResolved    = "net::ERR_NAME_NOT_RESOLVED"
	CodeConnectionReset    = "net::ERR_CONNECTION_RESET"
	CodeAddressUnreachable = "net::ERR_ADDRESS_UNREACHABLE"
	CodeFailed             = "net::ERR_FAILED"
)

// Certificate failure codes.
const (
	CodeCertAuthorityInvalid  = "net::ERR_CERT_AUTHORITY_INVALID"
	CodeCertCommonNameInvalid = "net::ERR_CERT_COMMON_NAME_INVALID"
	CodeCertDateInvalid       = "net::ERR_CERT_DATE_INVALID"
	CodeCertInvalid           = "net::ERR_CERT_INVALID"
)

// ErrUnsupportedScheme is returned for targets that are not ws or wss.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// ConnectError is a failure to establish the connection.
type ConnectError struct {
	Code string
	Err  error
}

func (e *ConnectError) Error() string { return e.Code }

func (e *ConnectError) Unwrap() error { return e.Err }

// CertificateError is a server certificate the client does not trust.
type CertificateError struct {
	Code  string
	Chain []*x509.Certificate
	Err   error
}

func (e *CertificateError) Error() string { return e.Code }

func (e *CertificateError) Unwrap() error { return e.Err }

// Leaf returns the server's end-entity certificate.
func (e *CertificateError) Leaf() *x509.Certificate {
	if len(e.Chain) == 0 {
		return nil
	}
	return e.Chain[0]
}

// ConnectCode maps a dial error to a net::ERR_* code.
func ConnectCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return CodeConnectionReset
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return CodeAddressUnreachable
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return CodeConnectionTimedOut
		}
		return CodeNameNotResolved
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return CodeConnectionTimedOut
	default:
		return CodeFailed
	}
}

// CertificateCode maps a verification error to a net::ERR_CERT_* code.
func CertificateCode(err error) string {
	var unknown x509.UnknownAuthorityError
	var host x509.HostnameError
	var invalid x509.CertificateInvalidError
	switch {
	case errors.As(err, &unknown):
		return CodeCertAuthorityInvalid
	case errors.As(err, &host):
		return CodeCertCommonNameInvalid
	case errors.As(err, &invalid) && invalid.Reason == x509.Expired:
		return CodeCertDateInvalid
	default:
		return CodeCertInvalid
	}
}

// CodeSSLProtocolError is reported for TLS handshake failures that are not
// certificate problems.
const CodeSSLProtocolError = "net::ERR_SSL_PROTOCOL_ERROR"
