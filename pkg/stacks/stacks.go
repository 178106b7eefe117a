// Package stacks holds the stacks compiled into the binary.
package stacks

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/systemstart/stackctl/pkg/api"
)

//go:embed *.stack.yaml
var files embed.FS

// Names returns the builtin stack names, sorted.
func Names() []string {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), api.StackFileSuffix))
	}
	slices.Sort(names)
	return names
}

// Load parses the builtin stack called name.
func Load(name string) (*api.Stack, error) {
	data, err := files.ReadFile(name + api.StackFileSuffix)
	if err != nil {
		return nil, fmt.Errorf("unknown builtin stack %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	s, err := api.ParseStack(data, "builtin:"+name)
	if err != nil {
		return nil, fmt.Errorf("builtin stack %s: %w", name, err)
	}
	return s, nil
}
