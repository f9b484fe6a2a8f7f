package handshake

import (
	"errors"
	"fmt"
)

// Kind classifies a handshake failure.
type Kind int

// Failure kinds. Each maps to exactly one sentinel error.
const (
	KindUnknown Kind = iota
	KindConnectionError
	KindHandshakeTimeout
	KindConnectionClosedBeforeResponse
	KindMalformedResponse
	KindUnexpectedStatusCode
	KindMissingHeader
	KindDuplicateHeader
	KindBadHeaderValue
	KindAcceptMismatch
	KindExtensionParseError
	KindUnsupportedExtension
	KindDuplicateExtension
	KindUnexpectedParameter
	KindMissingParameterValue
	KindDuplicateParameter
	KindInvalidParameterValue
	KindProtocolNotAccepted
	KindUnsolicitedProtocol
	KindProtocolMismatch
	KindNoCredentials
	KindSSLFailure
	KindInvalidRequest
)

var kindNames = map[Kind]string{
	KindUnknown:                        "unknown",
	KindConnectionError:                "connection_error",
	KindHandshakeTimeout:               "handshake_timeout",
	KindConnectionClosedBeforeResponse: "connection_closed_before_response",
	KindMalformedResponse:              "malformed_response",
	KindUnexpectedStatusCode:           "unexpected_status_code",
	KindMissingHeader:                  "missing_header",
	KindDuplicateHeader:                "duplicate_header",
	KindBadHeaderValue:                 "bad_header_value",
	KindAcceptMismatch:                 "accept_mismatch",
	KindExtensionParseError:            "extension_parse_error",
	KindUnsupportedExtension:           "unsupported_extension",
	KindDuplicateExtension:             "duplicate_extension",
	KindUnexpectedParameter:            "unexpected_parameter",
	KindMissingParameterValue:          "missing_parameter_value",
	KindDuplicateParameter:             "duplicate_parameter",
	KindInvalidParameterValue:          "invalid_parameter_value",
	KindProtocolNotAccepted:            "protocol_not_accepted",
	KindUnsolicitedProtocol:            "unsolicited_protocol",
	KindProtocolMismatch:               "protocol_mismatch",
	KindNoCredentials:                  "no_credentials",
	KindSSLFailure:                     "ssl_failure",
	KindInvalidRequest:                 "invalid_request",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinel errors, one per Kind. Use errors.Is against these.
var (
	ErrConnection                     = errors.New("connection error")
	ErrHandshakeTimeout               = errors.New("handshake timeout")
	ErrConnectionClosedBeforeResponse = errors.New("connection closed before response")
	ErrMalformedResponse              = errors.New("malformed response")
	ErrUnexpectedStatusCode           = errors.New("unexpected status code")
	ErrMissingHeader                  = errors.New("missing header")
	ErrDuplicateHeader                = errors.New("duplicate header")
	ErrBadHeaderValue                 = errors.New("bad header value")
	ErrAcceptMismatch                 = errors.New("accept mismatch")
	ErrExtensionParse                 = errors.New("extension parse error")
	ErrUnsupportedExtension           = errors.New("unsupported extension")
	ErrDuplicateExtension             = errors.New("duplicate extension")
	ErrUnexpectedParameter            = errors.New("unexpected extension parameter")
	ErrMissingParameterValue          = errors.New("missing extension parameter value")
	ErrDuplicateParameter             = errors.New("duplicate extension parameter")
	ErrInvalidParameterValue          = errors.New("invalid extension parameter value")
	ErrProtocolNotAccepted            = errors.New("protocol not accepted")
	ErrUnsolicitedProtocol            = errors.New("unsolicited protocol")
	ErrProtocolMismatch               = errors.New("protocol mismatch")
	ErrNoCredentials                  = errors.New("no credentials")
	ErrSSLFailure                     = errors.New("ssl failure")
	ErrInvalidRequest                 = errors.New("invalid request")
)

var kindSentinels = map[Kind]error{
	KindConnectionError:                ErrConnection,
	KindHandshakeTimeout:               ErrHandshakeTimeout,
	KindConnectionClosedBeforeResponse: ErrConnectionClosedBeforeResponse,
	KindMalformedResponse:              ErrMalformedResponse,
	KindUnexpectedStatusCode:           ErrUnexpectedStatusCode,
	KindMissingHeader:                  ErrMissingHeader,
	KindDuplicateHeader:                ErrDuplicateHeader,
	KindBadHeaderValue:                 ErrBadHeaderValue,
	KindAcceptMismatch:                 ErrAcceptMismatch,
	KindExtensionParseError:            ErrExtensionParse,
	KindUnsupportedExtension:           ErrUnsupportedExtension,
	KindDuplicateExtension:             ErrDuplicateExtension,
	KindUnexpectedParameter:            ErrUnexpectedParameter,
	KindMissingParameterValue:          ErrMissingParameterValue,
	KindDuplicateParameter:             ErrDuplicateParameter,
	KindInvalidParameterValue:          ErrInvalidParameterValue,
	KindProtocolNotAccepted:            ErrProtocolNotAccepted,
	KindUnsolicitedProtocol:            ErrUnsolicitedProtocol,
	KindProtocolMismatch:               ErrProtocolMismatch,
	KindNoCredentials:                  ErrNoCredentials,
	KindSSLFailure:                     ErrSSLFailure,
	KindInvalidRequest:                 ErrInvalidRequest,
}

// Message prefixes used by Error.Error.
const (
	prefixHandshake  = "Error during WebSocket handshake: "
	prefixConnection = "Error in connection establishment: "
	prefixDeflate    = "Error in " + PerMessageDeflate + ": "
)

// Error is a classified handshake failure.
type Error struct {
	Kind Kind

	// Detail is the message without the context prefix.
	Detail string

	// Header names the offending header for header-level failures.
	Header string

	// StatusCode is set for KindUnexpectedStatusCode.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

// Error returns the stable human-readable message including its context
// prefix.
func (e *Error) Error() string {
	switch e.Kind {
	case KindConnectionError, KindSSLFailure:
		return prefixConnection + e.Detail
	case KindHandshakeTimeout, KindConnectionClosedBeforeResponse, KindNoCredentials, KindInvalidRequest:
		return e.Detail
	default:
		return prefixHandshake + e.Detail
	}
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return KindUnknown
}

// NewError creates an *Error of the given kind.
func NewError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func missingHeader(name string) *Error {
	return &Error{Kind: KindMissingHeader, Header: name, Detail: fmt.Sprintf("'%s' header is missing", name)}
}

func duplicateHeader(name string) *Error {
	return &Error{
		Kind:   KindDuplicateHeader,
		Header: name,
		Detail: fmt.Sprintf("'%s' header must not appear more than once in a response", name),
	}
}

func deflateError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Header: HeaderSecWebSocketExtensions, Detail: prefixDeflate + detail}
}

func malformed(detail string) *Error {
	return &Error{Kind: KindMalformedResponse, Detail: detail}
}
