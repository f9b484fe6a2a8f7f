package handshake

import "fmt"

// PerMessageDeflate is the only extension this client can negotiate
// (RFC 7692).
const PerMessageDeflate = "permessage-deflate"

// permessage-deflate parameter names.
const (
	ParamClientNoContextTakeover = "client_no_context_takeover"
	ParamServerNoContextTakeover = "server_no_context_takeover"
	ParamClientMaxWindowBits     = "client_max_window_bits"
	ParamServerMaxWindowBits     = "server_max_window_bits"
)

// Window bits bounds for *_max_window_bits.
const (
	MinWindowBits = 8
	MaxWindowBits = 15
)

// PerMessageDeflateOffer returns the default compression offer:
// "permessage-deflate; client_max_window_bits".
func PerMessageDeflateOffer() Extension {
	return Extension{
		Name:   PerMessageDeflate,
		Params: []Param{{Name: ParamClientMaxWindowBits}},
	}
}

// DeflateParams is the typed view of an accepted permessage-deflate
// response. Zero window bits means the server did not send the parameter.
type DeflateParams struct {
	ClientNoContextTakeover bool `json:"clientNoContextTakeover,omitempty"`
	ServerNoContextTakeover bool `json:"serverNoContextTakeover,omitempty"`
	ClientMaxWindowBits     int  `json:"clientMaxWindowBits,omitempty"`
	ServerMaxWindowBits     int  `json:"serverMaxWindowBits,omitempty"`
}

// Agreement is an extension offer the server accepted. Extension holds the
// server's parameters verbatim for the codec collaborator.
type Agreement struct {
	Extension
	Deflate DeflateParams `json:"deflate"`
}

// NegotiateExtensions validates a Sec-WebSocket-Extensions response value
// against the offers that were sent. It returns at most one agreement.
func NegotiateExtensions(offers []Extension, value string) (*Agreement, error) {
	exts, err := ParseExtensions(value)
	if err != nil {
		return nil, err
	}

	var agreement *Agreement
	for _, ext := range exts {
		offer, offered := findOffer(offers, ext.Name)
		if ext.Name != PerMessageDeflate || !offered {
			return nil, &Error{
				Kind:   KindUnsupportedExtension,
				Header: HeaderSecWebSocketExtensions,
				Detail: fmt.Sprintf("Found an unsupported extension '%s' in 'Sec-WebSocket-Extensions' header", ext.Name),
			}
		}
		if agreement != nil {
			return nil, &Error{
				Kind:   KindDuplicateExtension,
				Header: HeaderSecWebSocketExtensions,
				Detail: "Received duplicate " + PerMessageDeflate + " response",
			}
		}
		params, err := validateDeflate(offer, ext)
		if err != nil {
			return nil, err
		}
		agreement = &Agreement{
			Extension: Extension{Name: ext.Name, Params: append([]Param(nil), ext.Params...)},
			Deflate:   params,
		}
	}
	return agreement, nil
}

func findOffer(offers []Extension, name string) (Extension, bool) {
	for _, o := range offers {
		if o.Name == name {
			return o, true
		}
	}
	return Extension{}, false
}

func validateDeflate(offer, ext Extension) (DeflateParams, error) {
	var params DeflateParams
	seen := make(map[string]bool, len(ext.Params))
	for _, p := range ext.Params {
		if seen[p.Name] {
			return params, deflateError(KindDuplicateParameter,
				"Received duplicate "+PerMessageDeflate+" extension parameter "+p.Name)
		}
		seen[p.Name] = true
	}

	for _, p := range ext.Params {
		switch p.Name {
		case ParamClientNoContextTakeover, ParamServerNoContextTakeover:
			if p.HasValue {
				return params, deflateError(KindUnexpectedParameter, "Received invalid "+p.Name+" parameter")
			}
			if p.Name == ParamClientNoContextTakeover {
				params.ClientNoContextTakeover = true
			} else {
				params.ServerNoContextTakeover = true
			}

		case ParamClientMaxWindowBits, ParamServerMaxWindowBits:
			if !p.HasValue {
				return params, deflateError(KindMissingParameterValue, p.Name+" must have value")
			}
			bits, ok := ParseWindowBits(p.Value)
			if !ok {
				return params, deflateError(KindInvalidParameterValue, "Received invalid "+p.Name+" parameter")
			}
			if p.Name == ParamClientMaxWindowBits {
				// RFC 7692 7.1.2.2: only allowed when the offer carried it.
				if _, offered := offer.Param(ParamClientMaxWindowBits); !offered {
					return params, deflateError(KindUnexpectedParameter, "Received unsolicited "+p.Name+" parameter")
				}
				params.ClientMaxWindowBits = bits
			} else {
				params.ServerMaxWindowBits = bits
			}

		default:
			return params, deflateError(KindUnexpectedParameter,
				"Received an unexpected "+PerMessageDeflate+" extension parameter")
		}
	}
	return params, nil
}

// ParseWindowBits accepts exactly the decimal strings "8" through "15":
// digits only, no sign, no leading zero.
func ParseWindowBits(s string) (int, bool) {
	if s == "" || len(s) > 2 || s[0] == '0' {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < MinWindowBits || n > MaxWindowBits {
		return 0, false
	}
	return n, true
}
