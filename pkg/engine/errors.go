package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a run failure for exit-code mapping and reporting.
type ErrorClass string

const (
	// ErrorClassLoad indicates the configuration directory could not be
	// read at all: missing directory, unreadable files.
	ErrorClassLoad ErrorClass = "load"

	// ErrorClassExternal indicates the external tool could not be spawned.
	// Tool-reported failures (non-zero exits) are rule data, not errors.
	ErrorClassExternal ErrorClass = "external"

	// ErrorClassConfig indicates an invalid policy or custom rule source.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassInternal indicates an unexpected engine failure.
	ErrorClassInternal ErrorClass = "internal"
)

// ValidatorError is a classified run failure with context.
type ValidatorError struct {
	// Class is the failure classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the file or directory involved, if applicable.
	Path string `json:"path,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ValidatorError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path=%s): %s", e.Class, e.Message, e.Path, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ValidatorError) Unwrap() error {
	return e.Err
}

func (e *ValidatorError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *ValidatorError) Is(target error) bool {
	t, ok := target.(*ValidatorError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithPath adds path context to an error.
func (e *ValidatorError) WithPath(path string) *ValidatorError {
	e.Path = path
	return e
}

// WithCode adds an error code to an error.
func (e *ValidatorError) WithCode(code string) *ValidatorError {
	e.Code = code
	return e
}

// NewLoadError creates a load-class error.
func NewLoadError(message string, err error) *ValidatorError {
	return &ValidatorError{Class: ErrorClassLoad, Message: message, Err: err}
}

// NewExternalError creates an external-class error.
func NewExternalError(message string, err error) *ValidatorError {
	return &ValidatorError{Class: ErrorClassExternal, Message: message, Err: err}
}

// NewConfigError creates a config-class error.
func NewConfigError(message string, err error) *ValidatorError {
	return &ValidatorError{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewInternalError creates an internal-class error.
func NewInternalError(message string, err error) *ValidatorError {
	return &ValidatorError{Class: ErrorClassInternal, Message: message, Err: err}
}

// IsLoadError returns true if the error is classified as a load failure.
func IsLoadError(err error) bool {
	var e *ValidatorError
	if errors.As(err, &e) {
		return e.Class == ErrorClassLoad
	}
	return false
}

// IsExternalError returns true if the error is classified as an external
// tool failure.
func IsExternalError(err error) bool {
	var e *ValidatorError
	if errors.As(err, &e) {
		return e.Class == ErrorClassExternal
	}
	return false
}

// IsConfigError returns true if the error is classified as a configuration
// failure.
func IsConfigError(err error) bool {
	var e *ValidatorError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfig
	}
	return false
}

// Common error codes.
const (
	ErrCodeDirectoryUnreadable = "DIRECTORY_UNREADABLE"
	ErrCodeSpawnFailed         = "SPAWN_FAILED"
	ErrCodeInvalidPolicy       = "INVALID_POLICY"
	ErrCodeInvalidRule         = "INVALID_RULE"
	ErrCodeEvaluationAborted   = "EVALUATION_ABORTED"
)
