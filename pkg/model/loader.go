package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a model description file. A model that cannot
// be read, parsed, or validated indicates a packaging defect; Load returns
// the error and leaves the decision to terminate to the caller.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model description: %w", err)
	}
	return Parse(data)
}

// Parse decodes a model description from raw YAML.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model description: %w", err)
	}
	if m.Version == 0 {
		m.Version = 1
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
