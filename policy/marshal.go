package policy

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// MarshalRegistry serializes a Registry to YAML bytes.
func MarshalRegistry(r *Registry) ([]byte, error) {
	return yaml.Marshal(r)
}

// MarshalRegistryToWriter serializes a Registry to YAML and writes to w.
func MarshalRegistryToWriter(r *Registry, w io.Writer) error {
	data, err := MarshalRegistry(r)
	if err != nil {
		return fmt.Errorf("marshal tool profile registry: %w", err)
	}
	_, err = w.Write(data)
	return err
}
