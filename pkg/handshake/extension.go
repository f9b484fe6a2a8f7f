package handshake

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Param is one extension parameter. HasValue distinguishes "name" from
// "name=" forms; the grammar never allows an empty value.
type Param struct {
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	HasValue bool   `json:"hasValue,omitempty"`
}

// String renders the parameter as it appears on the wire.
func (p Param) String() string {
	if !p.HasValue {
		return p.Name
	}
	return p.Name + "=" + p.Value
}

// Extension is a named extension with its parameters. It is used both for
// client offers and for entries parsed from a server response.
type Extension struct {
	Name   string  `json:"name"`
	Params []Param `json:"params,omitempty"`
}

// String renders the extension as it appears on the wire.
func (e Extension) String() string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	for _, p := range e.Params {
		sb.WriteString("; ")
		sb.WriteString(p.String())
	}
	return sb.String()
}

// Param returns the parameter named name.
func (e Extension) Param(name string) (Param, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// FormatExtensions joins extensions into a single header value.
func FormatExtensions(exts []Extension) string {
	parts := make([]string, len(exts))
	for i, e := range exts {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func cloneExtensions(exts []Extension) []Extension {
	if exts == nil {
		return nil
	}
	out := make([]Extension, len(exts))
	for i, e := range exts {
		out[i] = Extension{Name: e.Name, Params: append([]Param(nil), e.Params...)}
	}
	return out
}

// ParseExtensions parses a Sec-WebSocket-Extensions value:
//
//	extension-list = extension *( "," extension )
//	extension      = token *( ";" param )
//	param          = token [ "=" ( token / quoted-string ) ]
//
// Optional whitespace is allowed around separators. A quoted value must
// itself be a token after unescaping.
func ParseExtensions(value string) ([]Extension, error) {
	p := extensionParser{s: value}
	exts, ok := p.parseList()
	if !ok {
		return nil, &Error{
			Kind:   KindExtensionParseError,
			Header: HeaderSecWebSocketExtensions,
			Detail: "'Sec-WebSocket-Extensions' header value is rejected by the parser: " + value,
		}
	}
	return exts, nil
}

type extensionParser struct {
	s   string
	pos int
}

func (p *extensionParser) parseList() ([]Extension, bool) {
	var exts []Extension
	for {
		ext, ok := p.parseExtension()
		if !ok {
			return nil, false
		}
		exts = append(exts, ext)
		p.skipSpace()
		if p.done() {
			return exts, true
		}
		if !p.consume(',') {
			return nil, false
		}
	}
}

func (p *extensionParser) parseExtension() (Extension, bool) {
	p.skipSpace()
	name, ok := p.token()
	if !ok {
		return Extension{}, false
	}
	ext := Extension{Name: name}
	for {
		p.skipSpace()
		if !p.consume(';') {
			return ext, true
		}
		param, ok := p.parseParam()
		if !ok {
			return Extension{}, false
		}
		ext.Params = append(ext.Params, param)
	}
}

func (p *extensionParser) parseParam() (Param, bool) {
	p.skipSpace()
	name, ok := p.token()
	if !ok {
		return Param{}, false
	}
	p.skipSpace()
	if !p.consume('=') {
		return Param{Name: name}, true
	}
	p.skipSpace()
	var value string
	if p.peek() == '"' {
		value, ok = p.quoted()
		if !ok || !isToken(value) {
			return Param{}, false
		}
	} else if value, ok = p.token(); !ok {
		return Param{}, false
	}
	return Param{Name: name, Value: value, HasValue: true}, true
}

func (p *extensionParser) token() (string, bool) {
	start := p.pos
	for p.pos < len(p.s) && httpguts.IsTokenRune(rune(p.s[p.pos])) {
		p.pos++
	}
	return p.s[start:p.pos], p.pos > start
}

func (p *extensionParser) quoted() (string, bool) {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return sb.String(), true
		case '\\':
			if p.pos >= len(p.s) {
				return "", false
			}
			sb.WriteByte(p.s[p.pos])
			p.pos++
		default:
			sb.WriteByte(c)
		}
	}
	return "", false
}

func (p *extensionParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *extensionParser) consume(c byte) bool {
	if p.peek() != c {
		return false
	}
	p.pos++
	return true
}

func (p *extensionParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *extensionParser) done() bool { return p.pos >= len(p.s) }
