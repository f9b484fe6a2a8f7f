// Package certgen generates throwaway certificates for exercising the TLS
// trust-decision path: self-signed leaves, CA-issued leaves, expired and
// wrong-host certificates.
package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

// Config contains options for certificate generation.
type Config struct {
	// Organization name for the certificate
	Organization string
	// Common name (CN) for the certificate
	CommonName string
	// DNS subject alternative names
	DNSNames []string
	// IP subject alternative names
	IPAddresses []net.IP
	// NotBefore defaults to one minute ago.
	NotBefore time.Time
	// Validity duration
	ValidFor time.Duration
	// Whether this is a CA certificate
	IsCA bool
}

// Localhost returns a leaf configuration valid for localhost and the
// loopback addresses.
func Localhost() Config {
	return Config{
		Organization: "wshandshake test",
		CommonName:   "localhost",
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
		ValidFor:     24 * time.Hour,
	}
}

// CA returns a configuration for a signing authority.
func CA() Config {
	return Config{
		Organization: "wshandshake test",
		CommonName:   "wshandshake test CA",
		ValidFor:     24 * time.Hour,
		IsCA:         true,
	}
}

// Certificate is a generated certificate and its private key.
type Certificate struct {
	Leaf    *x509.Certificate
	Key     *ecdsa.PrivateKey
	CertPEM []byte
	KeyPEM  []byte

	// chain holds the DER of Leaf followed by its issuers, excluding the
	// self-signed root.
	chain [][]byte
}

// SelfSigned generates a self-signed certificate.
func SelfSigned(cfg Config) (*Certificate, error) {
	return generate(cfg, nil)
}

// Issue generates a certificate signed by ca.
func (ca *Certificate) Issue(cfg Config) (*Certificate, error) {
	if !ca.Leaf.IsCA {
		return nil, fmt.Errorf("certificate %q is not a CA", ca.Leaf.Subject.CommonName)
	}
	return generate(cfg, ca)
}

// TLS returns the certificate as a tls.Certificate for a server.
func (c *Certificate) TLS() tls.Certificate {
	return tls.Certificate{
		Certificate: c.chain,
		PrivateKey:  c.Key,
		Leaf:        c.Leaf,
	}
}

// Pool returns a pool containing only this certificate, for use as RootCAs.
func (c *Certificate) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(c.Leaf)
	return pool
}

func generate(cfg Config, issuer *Certificate) (*Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	tmpl, err := template(cfg)
	if err != nil {
		return nil, err
	}

	parent, signer := tmpl, key
	if issuer != nil {
		parent, signer = issuer.Leaf, issuer.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	chain := [][]byte{der}
	if issuer != nil && !isSelfSigned(issuer.Leaf) {
		chain = append(chain, issuer.chain...)
	}

	return &Certificate{
		Leaf:    leaf,
		Key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		chain:   chain,
	}, nil
}

func template(cfg Config) (*x509.Certificate, error) {
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := cfg.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Minute)
	}
	validFor := cfg.ValidFor
	if validFor == 0 {
		validFor = 24 * time.Hour
	}

	tmpl := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{cfg.Organization},
			CommonName:   cfg.CommonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              cfg.DNSNames,
		IPAddresses:           cfg.IPAddresses,
	}
	if cfg.IsCA {
		tmpl.IsCA = true
		tmpl.KeyUsage |= x509.KeyUsageCertSign
		tmpl.ExtKeyUsage = nil
	}
	return tmpl, nil
}

func isSelfSigned(c *x509.Certificate) bool {
	return c.CheckSignatureFrom(c) == nil
}

// DecodePEM parses every CERTIFICATE block in data.
func DecodePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in PEM data")
	}
	return certs, nil
}
