package handshake

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// StatusSwitchingProtocols is the only status that completes a handshake.
const StatusSwitchingProtocols = 101

// Negotiated holds the outcome of a successful validation.
type Negotiated struct {
	// Subprotocol is empty when none was requested.
	Subprotocol string `json:"subprotocol,omitempty"`

	// Extension is nil when the server accepted no extension.
	Extension *Agreement `json:"extension,omitempty"`
}

// Extensions returns the agreements as a slice, for callers that do not
// care that at most one is supported.
func (n *Negotiated) Extensions() []Agreement {
	if n == nil || n.Extension == nil {
		return nil
	}
	return []Agreement{*n.Extension}
}

// Validate checks resp against req. Checks run in a fixed order and the first
// violation is returned; resp is never modified.
//
// A 401 is reported as KindUnexpectedStatusCode like any other non-101
// status. Callers that implement authentication must intercept it first.
func Validate(req *Request, resp *Response) (*Negotiated, error) {
	if resp.StatusCode != StatusSwitchingProtocols {
		return nil, &Error{
			Kind:       KindUnexpectedStatusCode,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("Unexpected response code: %d", resp.StatusCode),
		}
	}

	h := resp.Header

	upgrade, err := single(h, HeaderUpgrade)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(upgrade, "websocket") {
		return nil, &Error{
			Kind:   KindBadHeaderValue,
			Header: HeaderUpgrade,
			Detail: "'Upgrade' header value is not 'WebSocket': " + upgrade,
		}
	}

	conn, err := single(h, HeaderConnection)
	if err != nil {
		return nil, err
	}
	if !httpguts.HeaderValuesContainsToken([]string{conn}, "Upgrade") {
		return nil, &Error{
			Kind:   KindBadHeaderValue,
			Header: HeaderConnection,
			Detail: "'Connection' header value must contain 'Upgrade'",
		}
	}

	accept, err := single(h, HeaderSecWebSocketAccept)
	if err != nil {
		return nil, err
	}
	if accept != req.ExpectedAccept() {
		return nil, &Error{
			Kind:   KindAcceptMismatch,
			Header: HeaderSecWebSocketAccept,
			Detail: "Incorrect 'Sec-WebSocket-Accept' header value",
		}
	}

	var n Negotiated

	switch exts := h.Values(HeaderSecWebSocketExtensions); len(exts) {
	case 0:
	case 1:
		agreement, err := NegotiateExtensions(req.extensions, exts[0])
		if err != nil {
			return nil, err
		}
		n.Extension = agreement
	default:
		return nil, duplicateHeader(HeaderSecWebSocketExtensions)
	}

	n.Subprotocol, err = NegotiateSubprotocol(req.subprotocols, h.Values(HeaderSecWebSocketProtocol))
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// single returns the value of a header that must appear exactly once.
func single(h Header, name string) (string, error) {
	switch vs := h.Values(name); len(vs) {
	case 0:
		return "", missingHeader(name)
	case 1:
		return vs[0], nil
	default:
		return "", duplicateHeader(name)
	}
}
