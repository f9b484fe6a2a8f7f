package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "wshandshake.config.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	return compiler.Compile(schemaURL)
})

// Schema returns the embedded JSON Schema document.
func Schema() []byte { return bytes.Clone(schemaJSON) }

// Problem is one schema violation.
type Problem struct {
	// Field is the dotted path of the offending value, empty for the root.
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Field == "" {
		return p.Message
	}
	return p.Field + ": " + p.Message
}

// ValidationError lists every schema violation in a document.
type ValidationError struct {
	Path     string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return e.Path + ": invalid configuration: " + strings.Join(parts, "; ")
}

// validate checks a decoded YAML document against the schema. doc must
// hold only JSON-compatible values.
func validate(path string, doc any) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	// Round-trip through JSON so numbers are json.Number.
	raw, err := json.Marshal(doc)
	if err != nil {
		return &ConfigError{Path: path, Message: err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return &ConfigError{Path: path, Message: err.Error()}
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ConfigError{Path: path, Message: err.Error()}
	}
	verr := &ValidationError{Path: path}
	collectProblems(ve, verr)
	return verr
}

func collectProblems(err *jsonschema.ValidationError, out *ValidationError) {
	if len(err.Causes) == 0 {
		out.Problems = append(out.Problems, Problem{
			Field:   fieldFromPointer(err.InstanceLocation),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collectProblems(cause, out)
	}
}

// fieldFromPointer converts a JSON Pointer to dot notation.
func fieldFromPointer(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}
	return strings.ReplaceAll(strings.TrimPrefix(ptr, "/"), "/", ".")
}
