package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSliceKeepsCommas(t *testing.T) {
	var s StringSlice
	require.NoError(t, s.Set("permessage-deflate; client_max_window_bits, x-foo"))
	require.NoError(t, s.Set("chat"))
	assert.Equal(t, StringSlice{"permessage-deflate; client_max_window_bits, x-foo", "chat"}, s)
	assert.Equal(t, "stringSlice", s.Type())
}

func TestHeader(t *testing.T) {
	var h Header
	require.NoError(t, h.Set("X-Token: abc"))
	assert.Error(t, h.Set("no-colon"))
	assert.Equal(t, StringSlice{"X-Token: abc"}, h.StringSlice)
	assert.Equal(t, "header", h.Type())
}
