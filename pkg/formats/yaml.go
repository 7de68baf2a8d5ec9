package formats

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseModel decodes and validates a YAML model definition.
func ParseModel(data []byte) (*AnimatedModel, error) {
	var m AnimatedModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding model definition: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model %q: %w", m.Name, err)
	}
	return &m, nil
}

// ParseModelFile reads and parses a YAML model definition from disk.
func ParseModelFile(path string) (*AnimatedModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	return ParseModel(data)
}

// MarshalModel encodes a model definition as YAML.
func MarshalModel(m *AnimatedModel) ([]byte, error) {
	return yaml.Marshal(m)
}
