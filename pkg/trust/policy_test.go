package trust

import (
	"context"
	"crypto/x509"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/wshandshake/internal/certgen"
	"github.com/getmockd/wshandshake/pkg/dialer"
	"github.com/getmockd/wshandshake/pkg/logging"
	"github.com/getmockd/wshandshake/pkg/transport"
)

func certInfo(t *testing.T, rawURL string, cfg certgen.Config) *dialer.CertificateInfo {
	t.Helper()
	cert, err := certgen.SelfSigned(cfg)
	require.NoError(t, err)
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &dialer.CertificateInfo{
		URL:   u,
		Code:  transport.CodeCertAuthorityInvalid,
		Chain: []*x509.Certificate{cert.Leaf},
	}
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	_, err := Compile("")
	assert.ErrorIs(t, err, ErrEmptyRule)

	_, err = Compile(`host + 1`)
	assert.Error(t, err, "non-bool rule")

	_, err = Compile(`nosuchfield == "x"`)
	assert.Error(t, err, "unknown identifier")
}

func TestPolicy_Allow(t *testing.T) {
	t.Parallel()

	local := certInfo(t, "wss://localhost:8443/", certgen.Localhost())
	expiredCfg := certgen.Localhost()
	expiredCfg.NotBefore = time.Now().Add(-48 * time.Hour)
	expiredCfg.ValidFor = time.Hour
	expired := certInfo(t, "wss://localhost/", expiredCfg)

	tests := []struct {
		name string
		rule string
		cert *dialer.CertificateInfo
		want bool
	}{
		{"host match", `host == "localhost"`, local, true},
		{"host mismatch", `host == "example.com"`, local, false},
		{"port", `port == "8443"`, local, true},
		{"self signed", `selfSigned && code == "net::ERR_CERT_AUTHORITY_INVALID"`, local, true},
		{"dns names", `"localhost" in dnsNames`, local, true},
		{"not expired", `!expired`, local, true},
		{"expired", `expired`, expired, true},
		{"subject", `subject contains "localhost"`, local, true},
		{"fingerprint", `fingerprint == "` + Fingerprint(local.Chain[0]) + `"`, local, true},
		{"other fingerprint", `fingerprint == "` + Fingerprint(expired.Chain[0]) + `"`, local, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Compile(tt.rule)
			require.NoError(t, err)
			got, err := p.Allow(tt.cert)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_NoChain(t *testing.T) {
	t.Parallel()

	p, err := Compile(`selfSigned || fingerprint != ""`)
	require.NoError(t, err)
	got, err := p.Allow(&dialer.CertificateInfo{Code: transport.CodeCertInvalid})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestPolicy_TrustFunc(t *testing.T) {
	t.Parallel()

	p, err := Compile(`host == "localhost"`)
	require.NoError(t, err)
	assert.Equal(t, `host == "localhost"`, p.String())

	trust := p.TrustFunc(logging.Nop())
	assert.True(t, trust(context.Background(), certInfo(t, "wss://localhost/", certgen.Localhost())))
	assert.False(t, trust(context.Background(), certInfo(t, "wss://127.0.0.1/", certgen.Localhost())))
}
