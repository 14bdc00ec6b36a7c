// Package errors defines the typed error taxonomy shared by both adapters.
//
// Internal layers (vendor clients, keepalive) return these types; the MCP
// boundary decides whether to flatten them into tool-result strings.
package errors

import (
	"fmt"
	"time"
)

// ConfigError represents configuration problems.
// Use this for missing credentials, bad env values, or invalid config files.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "GANGTISE_ACCESS_KEY")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// AuthError represents a failure to obtain or refresh vendor credentials.
// Raised when the login endpoint returns a non-success HTTP status or
// application code, or when the call itself fails.
type AuthError struct {
	// Endpoint is the login endpoint that was called (sanitized, no secrets)
	Endpoint string

	// StatusCode is the HTTP status code (if the call completed)
	StatusCode int

	// Code is the application-level result code from the response body
	Code string

	// Message is the human-readable error description
	Message string

	// Cause is the underlying error (network failure, decode failure)
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := "auth error"
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (code %s)", msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", msg, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// UpstreamError represents vendor API failures after authentication:
// non-200 responses, stream read failures, or bridge call errors.
type UpstreamError struct {
	// Service identifies the upstream ("gangtise", "wind-bridge")
	Service string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Message is the human-readable error message
	Message string

	// RequestID correlates this error with upstream logs
	RequestID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s error", e.Service)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// DecodeError represents a malformed payload from an otherwise healthy
// upstream (e.g., an SSE frame that is not valid JSON). Callers are
// expected to recover locally; this type exists so recovery paths can be
// logged and tested distinctly.
type DecodeError struct {
	// Input is a short excerpt of the payload that failed to decode
	Input string

	// Cause is the underlying decode error
	Cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("decode error on %q: %v", e.Input, e.Cause)
	}
	return fmt.Sprintf("decode error: %v", e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "gangtise query")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
