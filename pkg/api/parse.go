package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadStack reads a *.stack.yaml file, sets FilePath, and validates it.
func LoadStack(filename string) (*Stack, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading stack file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	s, err := ParseStack(data, absPath)
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", filename, err)
	}
	return s, nil
}

// ParseStack decodes and validates stack YAML. source is recorded as the
// stack's FilePath.
func ParseStack(data []byte, source string) (*Stack, error) {
	var s Stack
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing stack: %w", err)
	}
	s.FilePath = source

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating stack: %w", err)
	}
	return &s, nil
}
