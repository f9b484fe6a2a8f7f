package auth

import "errors"

// Sentinel errors for authorization failures.
var (
	// ErrUnsupportedScheme is returned when no supported challenge is present.
	ErrUnsupportedScheme = errors.New("unsupported authentication scheme")

	// ErrUnsupportedAlgorithm is returned for Digest algorithms other than MD5
	// and MD5-sess.
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

	// ErrUnsupportedQop is returned when a Digest challenge offers only
	// quality-of-protection values other than "auth".
	ErrUnsupportedQop = errors.New("unsupported digest qop")

	// ErrMissingNonce is returned for a Digest challenge without a nonce.
	ErrMissingNonce = errors.New("digest challenge has no nonce")

	// ErrInvalidPattern is returned for malformed StaticStore host globs.
	ErrInvalidPattern = errors.New("invalid host pattern")
)
