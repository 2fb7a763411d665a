package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a settings document. Fields absent from the file keep their defaults.
func Load(path string) (EditSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EditSettings{}, err
	}
	return Parse(data)
}

// Parse decodes a YAML settings document on top of Default.
func Parse(data []byte) (EditSettings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return EditSettings{}, fmt.Errorf("parse settings: %w", err)
	}
	if s.Version == "" {
		s.Version = CurrentVersion
	}
	if s.Version != CurrentVersion {
		return EditSettings{}, fmt.Errorf("unsupported settings version %q", s.Version)
	}
	return s, nil
}

// Save writes a settings document.
func Save(s EditSettings, path string) error {
	if s.Version == "" {
		s.Version = CurrentVersion
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
