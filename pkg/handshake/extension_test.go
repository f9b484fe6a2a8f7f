package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []Extension
	}{
		{
			name:  "single bare",
			value: "permessage-deflate",
			want:  []Extension{{Name: "permessage-deflate"}},
		},
		{
			name:  "params",
			value: "permessage-deflate; client_max_window_bits=10; server_no_context_takeover",
			want: []Extension{{Name: "permessage-deflate", Params: []Param{
				{Name: "client_max_window_bits", Value: "10", HasValue: true},
				{Name: "server_no_context_takeover"},
			}}},
		},
		{
			name:  "list with whitespace",
			value: " a ; b = c ,d;e ",
			want: []Extension{
				{Name: "a", Params: []Param{{Name: "b", Value: "c", HasValue: true}}},
				{Name: "d", Params: []Param{{Name: "e"}}},
			},
		},
		{
			name:  "quoted value",
			value: `x; y="12"`,
			want:  []Extension{{Name: "x", Params: []Param{{Name: "y", Value: "12", HasValue: true}}}},
		},
		{
			name:  "quoted value with escape",
			value: `x; y="1\2"`,
			want:  []Extension{{Name: "x", Params: []Param{{Name: "y", Value: "12", HasValue: true}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExtensions(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExtensions_Rejected(t *testing.T) {
	for _, value := range []string{
		";",
		"",
		"a;",
		"a,",
		",a",
		"a b",
		"a; b=",
		"a; =b",
		`a; b="c d"`,
		`a; b="c`,
		`a; b="c\`,
		"a; b=c=d",
	} {
		t.Run(value, func(t *testing.T) {
			_, err := ParseExtensions(value)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExtensionParse)
			assert.Equal(t,
				"Error during WebSocket handshake: 'Sec-WebSocket-Extensions' header value is rejected by the parser: "+value,
				err.Error())
		})
	}
}

func TestExtensionString(t *testing.T) {
	ext := Extension{Name: "permessage-deflate", Params: []Param{
		{Name: "client_max_window_bits"},
		{Name: "server_max_window_bits", Value: "10", HasValue: true},
	}}
	assert.Equal(t, "permessage-deflate; client_max_window_bits; server_max_window_bits=10", ext.String())

	p, ok := ext.Param("server_max_window_bits")
	require.True(t, ok)
	assert.Equal(t, "10", p.Value)
	_, ok = ext.Param("nope")
	assert.False(t, ok)

	assert.Equal(t, "a, b; c", FormatExtensions([]Extension{{Name: "a"}, {Name: "b", Params: []Param{{Name: "c"}}}}))
	assert.Equal(t, "", FormatExtensions(nil))
}

func TestFormatThenParse(t *testing.T) {
	offer := []Extension{PerMessageDeflateOffer(), {Name: "x-test", Params: []Param{{Name: "k", Value: "v", HasValue: true}}}}
	got, err := ParseExtensions(FormatExtensions(offer))
	require.NoError(t, err)
	assert.Equal(t, offer, got)
}
