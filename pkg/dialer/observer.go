package dialer

import (
	"crypto/x509"
	"net/url"
	"sync"

	"github.com/getmockd/wshandshake/pkg/handshake"
)

// Observer receives handshake progress. Methods are called one at a time and
// none starts after Cancel returns. A method that is already running when
// another goroutine calls Cancel may still be running when Cancel returns.
//
// Exactly one of OnSuccess and OnFailure is called per coordinator unless it
// was cancelled, in which case neither is.
type Observer interface {
	// OnOpeningHandshakeStarted is called once a request has been built and
	// before it is written. After a 401 retry it is called again for the new
	// request.
	OnOpeningHandshakeStarted(req *handshake.RequestInfo)

	// OnOpeningHandshakeFinished is called once per parsed response, before
	// the response is validated.
	OnOpeningHandshakeFinished(resp *handshake.ResponseInfo)

	// OnTrustDecisionRequired is called when the server certificate is not
	// trusted. Exactly one of decision.Continue or decision.Abort must be
	// called, from any goroutine, before or after returning.
	OnTrustDecisionRequired(cert *CertificateInfo, decision *TrustDecision)

	// OnSuccess hands over the established stream.
	OnSuccess(stream *Stream)

	// OnFailure reports the classified error and its message.
	OnFailure(err error, message string)
}

// BaseObserver implements Observer with no-ops. Certificate problems are
// aborted. Embed it to override only some methods.
type BaseObserver struct{}

func (BaseObserver) OnOpeningHandshakeStarted(*handshake.RequestInfo)   {}
func (BaseObserver) OnOpeningHandshakeFinished(*handshake.ResponseInfo) {}
func (BaseObserver) OnSuccess(*Stream)                                  {}
func (BaseObserver) OnFailure(error, string)                            {}

func (BaseObserver) OnTrustDecisionRequired(_ *CertificateInfo, d *TrustDecision) { d.Abort() }

// CertificateInfo describes an untrusted server certificate.
type CertificateInfo struct {
	URL *url.URL

	// Code is the net::ERR_CERT_* classification.
	Code string

	// Chain is the certificate chain the server presented, leaf first.
	Chain []*x509.Certificate
}

// TrustDecision collects the caller's answer to a certificate problem.
type TrustDecision struct {
	once sync.Once
	ch   chan bool
}

func newTrustDecision() *TrustDecision {
	return &TrustDecision{ch: make(chan bool, 1)}
}

// Continue proceeds with the certificate. Later calls are ignored.
func (d *TrustDecision) Continue() { d.resolve(true) }

// Abort fails the handshake. Later calls are ignored.
func (d *TrustDecision) Abort() { d.resolve(false) }

func (d *TrustDecision) resolve(proceed bool) {
	d.once.Do(func() { d.ch <- proceed })
}
