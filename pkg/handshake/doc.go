// Package handshake implements the client side of the WebSocket opening
// handshake as a set of pure, synchronous steps.
//
// The package knows nothing about sockets. It builds the upgrade request,
// parses the raw response head, validates it and negotiates the
// sub-protocol and the permessage-deflate extension. The dialer package
// drives these steps over a real transport.
//
// # Building a request
//
//	b := &handshake.Builder{
//	    Origin:       "http://localhost",
//	    Subprotocols: []string{"chat"},
//	    Extensions:   []handshake.Extension{handshake.PerMessageDeflateOffer()},
//	}
//	req, err := b.Build(u, "")
//
// # Validating a response
//
//	resp, err := handshake.ReadResponse(br, handshake.DefaultLimits())
//	negotiated, err := handshake.Validate(req, resp)
//
// # Errors
//
// Every failure is an *Error carrying a Kind. Error() returns the stable,
// human readable message (for example "Error during WebSocket handshake:
// Unexpected response code: 200"), and errors.Is matches the per-kind
// sentinels such as ErrUnexpectedStatusCode.
package handshake
