package handshake

import (
	"fmt"
	"slices"
)

// NegotiateSubprotocol checks the server's Sec-WebSocket-Protocol values
// against the requested sub-protocols and returns the selected one. values
// holds every occurrence of the header in the response.
func NegotiateSubprotocol(requested []string, values []string) (string, error) {
	if len(values) > 1 {
		return "", duplicateHeader(HeaderSecWebSocketProtocol)
	}

	if len(values) == 0 {
		if len(requested) > 0 {
			return "", &Error{
				Kind:   KindProtocolNotAccepted,
				Header: HeaderSecWebSocketProtocol,
				Detail: "Sent non-empty 'Sec-WebSocket-Protocol' header but no response was received",
			}
		}
		return "", nil
	}

	v := values[0]
	if len(requested) == 0 {
		return "", &Error{
			Kind:   KindUnsolicitedProtocol,
			Header: HeaderSecWebSocketProtocol,
			Detail: "Response must not include 'Sec-WebSocket-Protocol' header if not present in request: " + v,
		}
	}
	if !slices.Contains(requested, v) {
		return "", &Error{
			Kind:   KindProtocolMismatch,
			Header: HeaderSecWebSocketProtocol,
			Detail: fmt.Sprintf("'Sec-WebSocket-Protocol' header value '%s' in response does not match any of sent values", v),
		}
	}
	return v, nil
}
