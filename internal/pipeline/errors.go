package pipeline

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no file backs a requested path.
var ErrNotFound = errors.New("asset not found")

// TransformError wraps a failure returned by a plugin.
type TransformError struct {
	Plugin string
	Path   string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("plugin %s: transform %s: %v", e.Plugin, e.Path, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// UnknownPluginError is returned by New when a spec names a plugin that was
// never registered.
type UnknownPluginError struct {
	Name string
}

func (e *UnknownPluginError) Error() string {
	return fmt.Sprintf("unknown plugin %q", e.Name)
}
