package config

import (
	"github.com/getmockd/wshandshake/pkg/auth"
)

// Config is the complete wshandshake configuration.
type Config struct {
	// URL is the ws:// or wss:// target.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	Origin         string   `yaml:"origin,omitempty" json:"origin,omitempty"`
	UserAgent      string   `yaml:"userAgent,omitempty" json:"userAgent,omitempty"`
	AcceptLanguage string   `yaml:"acceptLanguage,omitempty" json:"acceptLanguage,omitempty"`
	Headers        []Header `yaml:"headers,omitempty" json:"headers,omitempty"`
	Subprotocols   []string `yaml:"subprotocols,omitempty" json:"subprotocols,omitempty"`

	// Extensions are raw Sec-WebSocket-Extensions offers, for example
	// "permessage-deflate; client_max_window_bits".
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`

	// Deflate appends the default permessage-deflate offer.
	Deflate bool `yaml:"deflate,omitempty" json:"deflate,omitempty"`

	// Timeout is a Go duration string such as "30s".
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	MaxAuthRounds  int `yaml:"maxAuthRounds,omitempty" json:"maxAuthRounds,omitempty"`
	MaxHeaderBytes int `yaml:"maxHeaderBytes,omitempty" json:"maxHeaderBytes,omitempty"`

	// CACertFile replaces the system roots with the PEM certificates in the
	// file.
	CACertFile string `yaml:"caCertFile,omitempty" json:"caCertFile,omitempty"`

	// AllowedCertFiles are PEM leaf certificates accepted without
	// verification.
	AllowedCertFiles []string `yaml:"allowedCertFiles,omitempty" json:"allowedCertFiles,omitempty"`

	// Trust is an expr rule deciding untrusted certificates.
	Trust string `yaml:"trust,omitempty" json:"trust,omitempty"`

	Credentials []auth.Entry `yaml:"credentials,omitempty" json:"credentials,omitempty"`

	Log LogConfig `yaml:"log,omitempty" json:"log,omitempty"`

	// Sources tracks where each value came from, keyed by YAML name.
	Sources map[string]string `yaml:"-" json:"-"`
}

// Header is an extra request header.
type Header struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// Value sources.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Defaults.
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// NewDefault returns a Config holding only defaults.
func NewDefault() *Config {
	return &Config{
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Sources: map[string]string{
			"log.level":  SourceDefault,
			"log.format": SourceDefault,
		},
	}
}

// Set records that key was set from source.
func (c *Config) Set(key, source string) {
	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[key] = source
}
