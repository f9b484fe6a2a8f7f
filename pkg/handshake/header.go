package handshake

import (
	"strings"
)

// Header names used during the opening handshake.
const (
	HeaderHost                   = "Host"
	HeaderConnection             = "Connection"
	HeaderUpgrade                = "Upgrade"
	HeaderOrigin                 = "Origin"
	HeaderAuthorization          = "Authorization"
	HeaderWWWAuthenticate        = "WWW-Authenticate"
	HeaderSecWebSocketKey        = "Sec-WebSocket-Key"
	HeaderSecWebSocketAccept     = "Sec-WebSocket-Accept"
	HeaderSecWebSocketVersion    = "Sec-WebSocket-Version"
	HeaderSecWebSocketProtocol   = "Sec-WebSocket-Protocol"
	HeaderSecWebSocketExtensions = "Sec-WebSocket-Extensions"
)

// Field is a single header line.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header is an ordered multimap of header fields. Names are compared
// case-insensitively; duplicates and their order are preserved.
//
// The zero value is an empty header ready to use.
type Header struct {
	fields []Field
}

// NewHeader creates a header from name/value pairs.
func NewHeader(fields ...Field) Header {
	h := Header{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

// Add appends a field. Existing fields with the same name are kept.
func (h *Header) Add(name, value string) {
	// Clipped so a Header copied by value never shares appended fields.
	h.fields = append(h.fields[:len(h.fields):len(h.fields)], Field{Name: name, Value: value})
}

// Set replaces every field named name with a single field.
// The new field takes the position of the first replaced one.
func (h *Header) Set(name, value string) {
	out := make([]Field, 0, len(h.fields)+1)
	placed := false
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if !placed {
			out = append(out, Field{Name: name, Value: value})
			placed = true
		}
	}
	h.fields = out
	if !placed {
		h.Add(name, value)
	}
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := make([]Field, 0, len(h.fields))
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first value for name, or "".
func (h Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns all values for name in arrival order.
func (h Header) Values(name string) []string {
	var vs []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vs = append(vs, f.Value)
		}
	}
	return vs
}

// Count returns how many times name occurs.
func (h Header) Count(name string) int {
	n := 0
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			n++
		}
	}
	return n
}

// Has reports whether name occurs at least once.
func (h Header) Has(name string) bool {
	return h.Count(name) > 0
}

// Len returns the number of fields.
func (h Header) Len() int { return len(h.fields) }

// Fields returns a copy of all fields in order.
func (h Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	return Header{fields: h.Fields()}
}

// appendTo writes the fields in wire form.
func (h Header) appendTo(b []byte) []byte {
	for _, f := range h.fields {
		b = append(b, f.Name...)
		b = append(b, ':')
		if f.Value != "" {
			b = append(b, ' ')
			b = append(b, f.Value...)
		}
		b = append(b, "\r\n"...)
	}
	return b
}
