package policy

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseRegistry parses a YAML byte slice into a Registry. Returns an
// error if the input is empty, contains invalid YAML syntax, or fails
// Validate.
func ParseRegistry(data []byte) (*Registry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty tool profile registry")
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse tool profile registry: %w", err)
	}

	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &registry, nil
}

// ParseRegistryFromReader parses a Registry from r.
func ParseRegistryFromReader(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tool profile registry: %w", err)
	}
	return ParseRegistry(data)
}
