package config

import "fmt"

// ErrorKind classifies a configuration failure.
type ErrorKind int

const (
	InvalidPort ErrorKind = iota + 1
	UnresolvablePath
	InvalidUpstream
	InvalidPlugin
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidPort:
		return "InvalidPort"
	case UnresolvablePath:
		return "UnresolvablePath"
	case InvalidUpstream:
		return "InvalidUpstream"
	case InvalidPlugin:
		return "InvalidPlugin"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ConfigError reports the first offending field found by Resolve.
type ConfigError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(kind ErrorKind, field string, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Field: field, Err: fmt.Errorf(format, args...)}
}
