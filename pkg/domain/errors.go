package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session id cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrRouteNotFound is returned when a route reference cannot be resolved.
var ErrRouteNotFound = errors.New("route not found")

// ErrStreamConsumed is returned when a finished stream is read again.
var ErrStreamConsumed = errors.New("stream already consumed")

// ConfigError reports an invalid agent configuration, such as an onComplete
// target that names an unknown route. Configuration errors are fatal at
// build or transition-resolution time; there is no silent fallback.
type ConfigError struct {
	Scope  string // route or agent element the error belongs to
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Scope == "" {
		return "invalid configuration: " + e.Detail
	}
	return fmt.Sprintf("invalid configuration for %q: %s", e.Scope, e.Detail)
}

// ToolError reports a tool handler failure. It is recoverable: the state
// machine stays at the failing step and the next turn retries it.
type ToolError struct {
	RouteID string
	StepID  string
	Tool    string
	Cause   error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed at step %q: %v", e.Tool, e.StepID, e.Cause)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// ProviderError reports a model call failure or timeout. Session state
// reflects only what was committed before the call.
type ProviderError struct {
	Op    string // "complete" or "stream"
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("model %s failed: %v", e.Op, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }
