package flowsint

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common pipeline error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrKindNotFound indicates the requested entity kind is not registered.
	ErrKindNotFound = errors.New("entity kind not found")

	// ErrPluginNotFound indicates the requested plugin was not found in the registry.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrInvalidDefinition indicates a template plugin definition is malformed.
	ErrInvalidDefinition = errors.New("invalid plugin definition")

	// ErrMissingPlaceholder indicates a template references a binding that was
	// not supplied during rendering.
	ErrMissingPlaceholder = errors.New("missing template placeholder")

	// ErrExecutionFailed indicates that a plugin's execute stage failed.
	// The underlying error should be wrapped for additional context.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrStoreUnavailable indicates the graph or relational store could not be
	// reached. Callers treat this as transient and skip the affected writes.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a kind or plugin was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors where a raw value cannot be coerced
	// to its declared entity kind.
	KindValidation = "validation"

	// KindExecution represents errors that occur during plugin execution.
	KindExecution = "execution"

	// KindTemplate represents errors in declarative plugin definitions.
	KindTemplate = "template"

	// KindStore represents transient graph or relational store failures.
	KindStore = "store"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindInternal represents internal pipeline errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &Error{
//		Op:   "Registry.Coerce",
//		Kind: KindValidation,
//		Err:  fmt.Errorf("field %q: %w", field, cause),
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Registry.Coerce", "Runner.Run").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include entity kinds, plugin names, or other debugging information.
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("flowsint: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("flowsint: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("flowsint: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on
// the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	// Check if target is an Error with matching Kind
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	// Delegate to underlying error
	return errors.Is(e.Err, target)
}

// WithContext returns a new Error with the provided context added.
// This is useful for adding debugging information to errors.
//
// Example:
//
//	err = err.WithContext(map[string]any{
//		"plugin":    "whois",
//		"sketch_id": sketchID,
//	})
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindNotFound,
		Err:  err,
	}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindValidation,
		Err:  err,
	}
}

// NewExecutionError creates a new Error with KindExecution.
func NewExecutionError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindExecution,
		Err:  err,
	}
}

// NewTemplateError creates a new Error with KindTemplate.
func NewTemplateError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindTemplate,
		Err:  err,
	}
}

// NewStoreError creates a new Error with KindStore.
func NewStoreError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindStore,
		Err:  err,
	}
}

// NewTimeoutError creates a new Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindTimeout,
		Err:  err,
	}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindConfiguration,
		Err:  err,
	}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindInternal,
		Err:  err,
	}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g.,
// "redis connection", "definition file"). If logger is nil, slog.Default()
// is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
