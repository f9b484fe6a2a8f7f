// Package flags provides reusable flag types for CLI commands.
package flags

import (
	"fmt"
	"strings"
)

// StringSlice implements pflag.Value for repeatable string flags. Unlike
// cobra's StringSlice it never splits on commas, so extension offers and
// header values survive intact.
type StringSlice []string

// String returns the string representation of the flag value.
func (s *StringSlice) String() string {
	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *StringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Type specifies the type label for Cobra flags.
func (s *StringSlice) Type() string {
	return "stringSlice"
}

// Header is a repeatable "Name: value" flag.
type Header struct {
	StringSlice
}

// Set validates and appends a header.
func (h *Header) Set(value string) error {
	if !strings.Contains(value, ":") {
		return fmt.Errorf("header %q must be in \"Name: value\" form", value)
	}
	return h.StringSlice.Set(value)
}

// Type specifies the type label for Cobra flags.
func (h *Header) Type() string {
	return "header"
}
