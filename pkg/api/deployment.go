package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DeploymentFile is the default deployment file name.
const DeploymentFile = "stackctl.yaml"

// LoadDeployment reads a deployment YAML file, unmarshals it, and validates.
// Dir is set to the file's directory so relative stack files resolve against
// it.
func LoadDeployment(filename string) (*Deployment, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading deployment file: %w", err)
	}

	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing deployment file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	d.Dir = filepath.Dir(absPath)

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("validating deployment file: %w", err)
	}

	return &d, nil
}

// Validate checks the deployment configuration for errors.
func (d *Deployment) Validate() error {
	if len(d.Stacks) == 0 {
		return fmt.Errorf("stacks list is empty")
	}

	names := make(map[string]bool)
	for i, ref := range d.Stacks {
		if ref.Name == "" {
			return fmt.Errorf("stack %d: name is required", i)
		}
		if names[ref.Name] {
			return fmt.Errorf("stack %q: duplicate name", ref.Name)
		}
		names[ref.Name] = true

		switch {
		case ref.File == "" && ref.Builtin == "":
			return fmt.Errorf("stack %q: one of file or builtin is required", ref.Name)
		case ref.File != "" && ref.Builtin != "":
			return fmt.Errorf("stack %q: file and builtin are mutually exclusive", ref.Name)
		}
	}

	return nil
}

// StackPath returns the absolute path of a file reference.
func (d *Deployment) StackPath(ref StackRef) string {
	if ref.File == "" || filepath.IsAbs(ref.File) || d.Dir == "" {
		return ref.File
	}
	return filepath.Join(d.Dir, ref.File)
}
