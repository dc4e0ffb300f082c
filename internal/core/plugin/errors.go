package plugin

import (
	"errors"
	"fmt"
)

var (
	ErrPluginNotInstalled = errors.New("plugin is not installed")
	ErrInvalidDescriptor  = errors.New("invalid plugin descriptor")
)

// PersistenceError reports a storage read or write failure. It is never
// fatal: callers fall back to an empty or in-memory registry.
type PersistenceError struct {
	Op  string // "load" or "save"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("plugin registry %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// InjectionError reports a failure to construct, fetch or run a plugin
// script. The plugin stays installed.
type InjectionError struct {
	PluginID ID
	Err      error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("inject plugin %d: %v", e.PluginID, e.Err)
}

func (e *InjectionError) Unwrap() error {
	return e.Err
}
