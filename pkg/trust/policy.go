// Package trust decides whether to proceed past untrusted server
// certificates using expr-lang rules such as
//
//	host == "localhost" && selfSigned
//	code == "net::ERR_CERT_AUTHORITY_INVALID" && fingerprint in ["9f86d0..."]
package trust

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/wshandshake/pkg/dialer"
	"github.com/getmockd/wshandshake/pkg/logging"
)

// ErrEmptyRule is returned by Compile for a blank rule.
var ErrEmptyRule = errors.New("empty trust rule")

// Env is what a rule can refer to.
type Env struct {
	Host        string    `expr:"host"`
	Port        string    `expr:"port"`
	Code        string    `expr:"code"`
	Subject     string    `expr:"subject"`
	Issuer      string    `expr:"issuer"`
	DNSNames    []string  `expr:"dnsNames"`
	NotBefore   time.Time `expr:"notBefore"`
	NotAfter    time.Time `expr:"notAfter"`
	Expired     bool      `expr:"expired"`
	SelfSigned  bool      `expr:"selfSigned"`
	Fingerprint string    `expr:"fingerprint"`
}

// Policy is a compiled trust rule.
type Policy struct {
	rule    string
	program *vm.Program
	now     func() time.Time
}

// Compile compiles rule, which must evaluate to a bool.
func Compile(rule string) (*Policy, error) {
	if rule == "" {
		return nil, ErrEmptyRule
	}
	program, err := expr.Compile(rule, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile trust rule %q: %w", rule, err)
	}
	return &Policy{rule: rule, program: program, now: time.Now}, nil
}

// String returns the rule source.
func (p *Policy) String() string { return p.rule }

// Allow evaluates the rule for cert.
func (p *Policy) Allow(cert *dialer.CertificateInfo) (bool, error) {
	out, err := expr.Run(p.program, p.env(cert))
	if err != nil {
		return false, fmt.Errorf("eval trust rule %q: %w", p.rule, err)
	}
	allowed, _ := out.(bool)
	return allowed, nil
}

// TrustFunc adapts p for dialer.Options.Trust. Evaluation errors deny.
func (p *Policy) TrustFunc(log *slog.Logger) dialer.TrustFunc {
	log = logging.WithComponent(log, "trust")
	return func(_ context.Context, cert *dialer.CertificateInfo) bool {
		allowed, err := p.Allow(cert)
		if err != nil {
			log.Warn("trust rule failed", logging.KeyError, err)
			return false
		}
		log.Debug("trust decision", "code", cert.Code, "allowed", allowed)
		return allowed
	}
}

func (p *Policy) env(cert *dialer.CertificateInfo) Env {
	env := Env{Code: cert.Code}
	if cert.URL != nil {
		env.Host, env.Port = cert.URL.Hostname(), cert.URL.Port()
	}
	if len(cert.Chain) == 0 {
		return env
	}
	leaf := cert.Chain[0]
	env.Subject = leaf.Subject.String()
	env.Issuer = leaf.Issuer.String()
	env.DNSNames = leaf.DNSNames
	env.NotBefore, env.NotAfter = leaf.NotBefore, leaf.NotAfter
	env.Expired = p.now().After(leaf.NotAfter)
	env.SelfSigned = selfSigned(leaf)
	env.Fingerprint = Fingerprint(leaf)
	return env
}

// selfSigned reports whether cert is signed by its own key. Unlike
// CheckSignatureFrom it does not require the CA flag.
func selfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

// Fingerprint returns the lowercase hex SHA-256 of the certificate's DER
// encoding.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}
