package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Steps []*Step `yaml:"steps"`
}

// LoadFile reads step definitions from a YAML file.
func LoadFile(path string) ([]*Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("schema: %s defines no steps", path)
	}
	return f.Steps, nil
}

// Load returns the default schema extended by the steps in path.
// An empty path yields the default schema unchanged.
func Load(path string) (*Schema, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	steps, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return base.With(steps...)
}
