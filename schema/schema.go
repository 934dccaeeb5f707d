// Package schema validates envelopes against versioned JSON schemas keyed
// by (type, version). Schemas are compiled once at startup; an unknown
// version is a hard UnknownSchemaVersion error, never a silent pass.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Key identifies a schema by envelope type and version.
type Key struct {
	Type    string
	Version string
}

func (k Key) String() string { return k.Type + "@" + k.Version }

// UnknownSchemaVersionError is returned when no schema is registered for
// the requested (type, version) pair.
type UnknownSchemaVersionError struct {
	Key Key
}

func (e *UnknownSchemaVersionError) Error() string {
	return fmt.Sprintf("unknown schema version: %s", e.Key)
}

// Result is the outcome of validating one envelope.
type Result struct {
	Valid  bool
	Errors []string
}

// Registry holds compiled schemas keyed by (type, version). Safe for
// concurrent use: Load takes the write lock and Validate the read lock.
type Registry struct {
	mu      sync.RWMutex
	schemas map[Key]*jsonschema.Schema
}

// NewRegistry returns an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[Key]*jsonschema.Schema)}
}

// Load compiles and registers a schema document for the given key. Called
// once per (type, version) at startup.
func (r *Registry) Load(key Key, schemaJSON []byte) error {
	c := jsonschema.NewCompiler()
	resourceName := key.String() + ".json"
	if err := c.AddResource(resourceName, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("schema: add resource %s: %w", resourceName, err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("schema: compile %s: %w", resourceName, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[key] = compiled
	return nil
}

// Validate checks envelope, given as raw JSON bytes, against the schema
// registered for key.
func (r *Registry) Validate(key Key, envelope []byte) (Result, error) {
	r.mu.RLock()
	compiled, ok := r.schemas[key]
	r.mu.RUnlock()
	if !ok {
		return Result{}, &UnknownSchemaVersionError{Key: key}
	}

	var v any
	if err := json.Unmarshal(envelope, &v); err != nil {
		return Result{Valid: false, Errors: []string{err.Error()}}, nil
	}

	if err := compiled.Validate(v); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return Result{Valid: false, Errors: flattenValidationErrors(verr)}, nil
		}
		return Result{Valid: false, Errors: []string{err.Error()}}, nil
	}
	return Result{Valid: true}, nil
}

// flattenValidationErrors walks a jsonschema.ValidationError tree into a
// flat list of "<path>: <message>" strings for API responses and logs.
func flattenValidationErrors(verr *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, fmt.Sprintf("%s: %s", e.InstanceLocation, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
