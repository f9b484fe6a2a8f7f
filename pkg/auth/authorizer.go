package auth

import (
	"crypto/md5" //nolint:gosec // RFC 2617 Digest is defined over MD5
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Credentials is a username and password pair.
type Credentials struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Authorizer computes Authorization header values.
//
// The zero value is ready to use.
type Authorizer struct {
	// Cnonce returns the client nonce for Digest qop=auth. Defaults to 16
	// random hex characters.
	Cnonce func() (string, error)
}

// Authorize answers ch with creds for a request with the given method and
// request-URI.
func (a *Authorizer) Authorize(ch Challenge, creds Credentials, method, uri string) (string, error) {
	switch ch.Scheme {
	case SchemeBasic:
		return Basic(creds), nil
	case SchemeDigest:
		return a.digest(ch, creds, method, uri)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, ch.Scheme)
	}
}

// Basic returns the Basic Authorization value for creds.
func Basic(creds Credentials) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds.Username+":"+creds.Password))
}

const digestNonceCount = "00000001"

func (a *Authorizer) digest(ch Challenge, creds Credentials, method, uri string) (string, error) {
	if err := supportedDigest(ch); err != nil {
		return "", err
	}

	realm := ch.Realm()
	nonce := ch.Param("nonce")
	algorithm := ch.Param("algorithm")
	useQop := hasQopAuth(ch.Param("qop"))

	var cnonce string
	if useQop || strings.EqualFold(algorithm, "MD5-sess") {
		var err error
		if cnonce, err = a.cnonce(); err != nil {
			return "", fmt.Errorf("failed to generate cnonce: %w", err)
		}
	}

	ha1 := md5hex(creds.Username + ":" + realm + ":" + creds.Password)
	if strings.EqualFold(algorithm, "MD5-sess") {
		ha1 = md5hex(ha1 + ":" + nonce + ":" + cnonce)
	}
	ha2 := md5hex(method + ":" + uri)

	var response string
	if useQop {
		response = md5hex(strings.Join([]string{ha1, nonce, digestNonceCount, cnonce, "auth", ha2}, ":"))
	} else {
		response = md5hex(ha1 + ":" + nonce + ":" + ha2)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Digest username=%s, realm=%s, nonce=%s, uri=%s`,
		quote(creds.Username), quote(realm), quote(nonce), quote(uri))
	if algorithm != "" {
		sb.WriteString(", algorithm=" + algorithm)
	}
	sb.WriteString(`, response="` + response + `"`)
	if opaque, ok := ch.Params["opaque"]; ok {
		sb.WriteString(", opaque=" + quote(opaque))
	}
	if useQop {
		sb.WriteString(", qop=auth, nc=" + digestNonceCount + ", cnonce=" + quote(cnonce))
	}
	return sb.String(), nil
}

func supportedDigest(ch Challenge) error {
	if ch.Param("nonce") == "" {
		return ErrMissingNonce
	}
	switch alg := ch.Param("algorithm"); {
	case alg == "", strings.EqualFold(alg, "MD5"), strings.EqualFold(alg, "MD5-sess"):
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	if qop, ok := ch.Params["qop"]; ok && !hasQopAuth(qop) {
		return fmt.Errorf("%w: %s", ErrUnsupportedQop, qop)
	}
	return nil
}

func hasQopAuth(qop string) bool {
	for _, v := range strings.Split(qop, ",") {
		if strings.EqualFold(strings.TrimSpace(v), "auth") {
			return true
		}
	}
	return false
}

func (a *Authorizer) cnonce() (string, error) {
	if a.Cnonce != nil {
		return a.Cnonce()
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
