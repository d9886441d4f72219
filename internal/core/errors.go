package core

import (
	"errors"
	"fmt"
)

// ErrUnknownProviderType is returned by the registry when no constructor is
// registered for the requested provider type.
var ErrUnknownProviderType = errors.New("unknown provider type")

// ConfigurationError indicates invalid configuration input: bad TTL or size
// bounds, malformed provider config, missing required fields. It is surfaced
// to the caller, never silently defaulted.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// ProviderError indicates a failure in provider construction, health
// checking, or motion computation. It always carries the provider type
// so callers can tell which backend failed.
type ProviderError struct {
	ProviderType string
	Message      string
	Err          error `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.ProviderType != "" {
		return fmt.Sprintf("[%s] %s", e.ProviderType, e.Message)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError wrapping err.
func NewProviderError(providerType, message string, err error) *ProviderError {
	return &ProviderError{ProviderType: providerType, Message: message, Err: err}
}

// PersistenceError indicates a load or save failure against durable cache
// storage. Load failures degrade to an empty cache; save failures are
// logged and never roll back the in-memory mutation that triggered them.
type PersistenceError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cache persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a PersistenceError for the given operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}
