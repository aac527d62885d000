package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// New returns a Raw populated with default values.
func New() *Raw {
	var raw Raw
	if err := defaults.Set(&raw); err != nil {
		panic(err)
	}
	return &raw
}

// Load reads and parses a YAML configuration file at path.
// If path does not exist or is empty, it returns the defaults. Relative
// paths in the file are resolved against the file's directory.
func Load(path string) (*Raw, error) {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, &ConfigError{Kind: UnresolvablePath, Field: "root", Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			raw := New()
			raw.dir = dir
			return raw, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw, err := Parse(data)
	if err != nil {
		return nil, err
	}
	raw.dir = dir
	raw.file = filepath.Join(dir, filepath.Base(path))
	return raw, nil
}

// Parse decodes YAML bytes over the defaults. Relative roots are resolved
// against the working directory.
func Parse(data []byte) (*Raw, error) {
	raw := New()
	if len(strings.TrimSpace(string(data))) == 0 {
		return raw, nil
	}
	if err := yaml.Unmarshal(data, raw); err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return raw, nil
}
