package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvURL           = "WSH_URL"
	EnvOrigin        = "WSH_ORIGIN"
	EnvUserAgent     = "WSH_USER_AGENT"
	EnvSubprotocols  = "WSH_SUBPROTOCOLS"
	EnvDeflate       = "WSH_DEFLATE"
	EnvTimeout       = "WSH_TIMEOUT"
	EnvMaxAuthRounds = "WSH_MAX_AUTH_ROUNDS"
	EnvCACertFile    = "WSH_CA_CERT_FILE"
	EnvTrust         = "WSH_TRUST"
	EnvLogLevel      = "WSH_LOG_LEVEL"
	EnvLogFormat     = "WSH_LOG_FORMAT"
)

// LoadEnv applies WSH_* environment variables to cfg. Malformed numbers and
// booleans are errors.
func LoadEnv(cfg *Config) error {
	setString := func(env, key string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
			cfg.Set(key, SourceEnv)
		}
	}

	setString(EnvURL, "url", &cfg.URL)
	setString(EnvOrigin, "origin", &cfg.Origin)
	setString(EnvUserAgent, "userAgent", &cfg.UserAgent)
	setString(EnvTimeout, "timeout", &cfg.Timeout)
	setString(EnvCACertFile, "caCertFile", &cfg.CACertFile)
	setString(EnvTrust, "trust", &cfg.Trust)
	setString(EnvLogLevel, "log.level", &cfg.Log.Level)
	setString(EnvLogFormat, "log.format", &cfg.Log.Format)

	// WSH_SUBPROTOCOLS is comma-separated.
	if v := os.Getenv(EnvSubprotocols); v != "" {
		cfg.Subprotocols = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Subprotocols = append(cfg.Subprotocols, p)
			}
		}
		cfg.Set("subprotocols", SourceEnv)
	}

	if v := os.Getenv(EnvDeflate); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDeflate, err)
		}
		cfg.Deflate = b
		cfg.Set("deflate", SourceEnv)
	}

	if v := os.Getenv(EnvMaxAuthRounds); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s: must be a positive integer, got %q", EnvMaxAuthRounds, v)
		}
		cfg.MaxAuthRounds = n
		cfg.Set("maxAuthRounds", SourceEnv)
	}
	return nil
}
