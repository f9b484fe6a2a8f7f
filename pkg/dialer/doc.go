// Package dialer runs the client side of a WebSocket opening handshake.
//
// A Coordinator owns one handshake. It connects through a transport.Transport,
// writes the request built by package handshake, reads and validates the
// response, answers a 401 with stored credentials, and asks its Observer
// whether to proceed past an untrusted certificate. The lifecycle is:
//
//	Idle -> Connecting -> SendingRequest -> ReadingResponse -> Validating -> Succeeded
//	                ^  \__ trust retry                              |
//	                 \________________ AuthChallenge <--------------/
//
// Any non-terminal state may move to Failed or Cancelled. A handshake-wide
// timer starts when Connecting is entered and is stopped on every terminal
// path, which also releases the connection.
//
// Dial wraps a Coordinator for callers that want to block:
//
//	stream, err := dialer.Dial(ctx, dialer.Options{
//		URL:          u,
//		Subprotocols: []string{"chat"},
//	})
//	if err != nil {
//		log.Fatal(err) // e.g. "Error during WebSocket handshake: Unexpected response code: 404"
//	}
//	defer stream.Close()
package dialer
