// Package fault defines the error taxonomy shared by the provider clients and pipeline stages.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError reports a non-success response from an external provider
// (search, text generation, or messaging).
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 512))
}

// NewProviderError builds a ProviderError from a response status and body.
func NewProviderError(provider string, statusCode int, body []byte) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Body: strings.TrimSpace(string(body))}
}

// ParseError reports a provider response that could not be decoded into the
// expected structure, even after tolerant extraction.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigError reports required configuration that is absent. It is always fatal.
type ConfigError struct {
	Command string
	Missing []string
}

func (e *ConfigError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("config: missing required settings: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("config: %s: missing required settings: %s", e.Command, strings.Join(e.Missing, ", "))
}

// IsProvider reports whether err (or any error in its chain) is a ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsParse reports whether err (or any error in its chain) is a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsConfig reports whether err (or any error in its chain) is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// StatusCode returns the provider status carried by err, or 0 if none.
func StatusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
