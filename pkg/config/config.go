// Package config loads the flat key-value environment that resource
// bindings read project, region and naming values from.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

const (
	KeyProject = "PROJECT_ID"
	KeyRegion  = "REGION"
	KeyPrefix  = "NAME_PREFIX"

	DefaultPrefix = "inference"
)

var requiredKeys = []string{KeyProject, KeyRegion}

// Config is an immutable set of key-value pairs.
type Config struct {
	values map[string]string
}

// Option adjusts how Load assembles values.
type Option func(*loader)

type loader struct {
	environ []string
	values  map[string]string
}

// WithEnviron overlays KEY=VALUE entries (as returned by os.Environ) for
// keys that are already known from the env file or are well-known keys.
// Unrelated process variables are ignored.
func WithEnviron(environ []string) Option {
	return func(l *loader) {
		l.environ = environ
	}
}

// WithValues overlays explicit values last.
func WithValues(values map[string]string) Option {
	return func(l *loader) {
		maps.Copy(l.values, values)
	}
}

// Load reads envFile with godotenv and applies opts. A missing envFile is
// not an error; the values may come entirely from the environment.
func Load(envFile string, opts ...Option) (*Config, error) {
	l := &loader{values: make(map[string]string)}
	for _, opt := range opts {
		opt(l)
	}

	values := make(map[string]string)
	if envFile != "" {
		fileValues, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
		maps.Copy(values, fileValues)
	}

	for _, kv := range l.environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, known := values[key]; known || isWellKnown(key) {
			values[key] = value
		}
	}

	maps.Copy(values, l.values)
	return New(values)
}

// New validates values and returns a Config holding a copy of them.
func New(values map[string]string) (*Config, error) {
	c := &Config{values: maps.Clone(values)}
	if c.values == nil {
		c.values = make(map[string]string)
	}
	if c.values[KeyPrefix] == "" {
		c.values[KeyPrefix] = DefaultPrefix
	}

	var missing []string
	for _, k := range requiredKeys {
		if c.values[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return c, nil
}

func isWellKnown(key string) bool {
	return key == KeyProject || key == KeyRegion || key == KeyPrefix
}

// Get returns the value for key.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the value for key or an empty string.
func (c *Config) Value(key string) string { return c.values[key] }

// Project returns the cloud project ID.
func (c *Config) Project() string { return c.values[KeyProject] }

// Region returns the default region.
func (c *Config) Region() string { return c.values[KeyRegion] }

// Prefix returns the resource naming prefix.
func (c *Config) Prefix() string { return c.values[KeyPrefix] }

// Keys returns the sorted configuration keys.
func (c *Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// TemplateData returns the values as template data.
func (c *Config) TemplateData() map[string]any {
	data := make(map[string]any, len(c.values))
	for k, v := range c.values {
		data[k] = v
	}
	return data
}
