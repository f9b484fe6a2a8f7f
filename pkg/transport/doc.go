// Package transport opens the TCP or TLS connection a WebSocket handshake
// runs over.
//
// Connect failures are reported as *ConnectError carrying a stable
// net::ERR_* code. Certificate problems are reported as *CertificateError
// so that the caller can ask the user whether to proceed; proceeding means
// connecting again with the presented leaf certificate in
// Target.AllowedCertificates.
package transport
