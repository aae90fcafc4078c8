package config

import (
	"errors"
	"fmt"
)

// ErrConfigNotFound indicates the requested configuration file is missing.
var ErrConfigNotFound = errors.New("config file not found")

// ErrInvalidYAML indicates a configuration file failed to parse.
var ErrInvalidYAML = errors.New("invalid YAML")

// LoadError wraps a configuration-file loading failure with the filename
// that triggered it.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError wraps err with the offending config filename.
func NewLoadError(file string, err error) error {
	return &LoadError{File: file, Err: err}
}
