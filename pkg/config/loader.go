package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigError represents a configuration file error with location info.
type ConfigError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return e.Path + " (line " + strconv.Itoa(e.Line) + ", column " + strconv.Itoa(e.Column) + "): " + e.Message
	}
	return e.Path + ": " + e.Message
}

// LoadFile reads, validates and decodes a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes YAML data. path is used in errors only.
func Parse(path string, data []byte) (*Config, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, yamlError(path, err)
	}
	cfg := &Config{Sources: make(map[string]string)}
	if len(node.Content) == 0 {
		return cfg, nil
	}

	var doc any
	if err := node.Decode(&doc); err != nil {
		return nil, yamlError(path, err)
	}
	if err := validate(path, doc); err != nil {
		return nil, err
	}
	if err := node.Decode(cfg); err != nil {
		return nil, yamlError(path, err)
	}

	for _, key := range topLevelKeys(&node) {
		cfg.Sources[key] = SourceFile
	}
	return cfg, nil
}

// topLevelKeys returns the mapping keys of the document root, expanding the
// log block to log.level and log.format.
func topLevelKeys(doc *yaml.Node) []string {
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}
	var keys []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		if key != "log" || value.Kind != yaml.MappingNode {
			keys = append(keys, key)
			continue
		}
		for j := 0; j+1 < len(value.Content); j += 2 {
			keys = append(keys, "log."+value.Content[j].Value)
		}
	}
	return keys
}

func yamlError(path string, err error) error {
	var te *yaml.TypeError
	if errors.As(err, &te) && len(te.Errors) > 0 {
		return &ConfigError{Path: path, Message: te.Errors[0]}
	}
	line, col := 0, 0
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		col = 1
	}
	return &ConfigError{Path: path, Line: line, Column: col, Message: err.Error()}
}

// Merge applies every value src recorded in its Sources onto dst.
func Merge(dst, src *Config) {
	if src == nil {
		return
	}
	for key, source := range src.Sources {
		if !copyField(dst, src, key) {
			continue
		}
		dst.Set(key, source)
	}
}

// copyField copies one field identified by its YAML key.
func copyField(dst, src *Config, key string) bool {
	switch key {
	case "url":
		dst.URL = src.URL
	case "origin":
		dst.Origin = src.Origin
	case "userAgent":
		dst.UserAgent = src.UserAgent
	case "acceptLanguage":
		dst.AcceptLanguage = src.AcceptLanguage
	case "headers":
		dst.Headers = append([]Header(nil), src.Headers...)
	case "subprotocols":
		dst.Subprotocols = append([]string(nil), src.Subprotocols...)
	case "extensions":
		dst.Extensions = append([]string(nil), src.Extensions...)
	case "deflate":
		dst.Deflate = src.Deflate
	case "timeout":
		dst.Timeout = src.Timeout
	case "maxAuthRounds":
		dst.MaxAuthRounds = src.MaxAuthRounds
	case "maxHeaderBytes":
		dst.MaxHeaderBytes = src.MaxHeaderBytes
	case "caCertFile":
		dst.CACertFile = src.CACertFile
	case "allowedCertFiles":
		dst.AllowedCertFiles = append([]string(nil), src.AllowedCertFiles...)
	case "trust":
		dst.Trust = src.Trust
	case "credentials":
		dst.Credentials = append(dst.Credentials[:0:0], src.Credentials...)
	case "log.level":
		dst.Log.Level = src.Log.Level
	case "log.format":
		dst.Log.Format = src.Log.Format
	default:
		return false
	}
	return true
}

// Load merges defaults, the file at path (if non-empty) and the
// environment.
func Load(path string) (*Config, error) {
	cfg := NewDefault()
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		Merge(cfg, fileCfg)
	}
	if err := LoadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
