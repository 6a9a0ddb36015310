package engine

import (
	"errors"
	"fmt"
)

// ErrorClass tells the driver whether repeating a task can help.
type ErrorClass string

const (
	// ErrorClassTransient failures may succeed in a later cycle, for example
	// when a requirement is installed meanwhile.
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassThrottled ErrorClass = "throttled"
	ErrorClassConflict  ErrorClass = "conflict"

	// ErrorClassPermanent failures repeat until the resource changes, for
	// example malformed declared metadata.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError is a classified error raised by a task.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
	Code    string     `json:"code,omitempty"`

	// Resource is the URL of the resource the task worked on.
	Resource string `json:"resource,omitempty"`

	// Task is the sort key of the failing task.
	Task string `json:"task,omitempty"`

	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches errors with the same class and code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewTransientError classifies err as transient.
func NewTransientError(message string, err error) *EngineError {
	return newError(ErrorClassTransient, message, err)
}

// NewThrottledError classifies err as throttled.
func NewThrottledError(message string, err error) *EngineError {
	return newError(ErrorClassThrottled, message, err)
}

// NewConflictError classifies err as a conflict with the host runtime.
func NewConflictError(message string, err error) *EngineError {
	return newError(ErrorClassConflict, message, err)
}

// NewPermanentError classifies err as permanent.
func NewPermanentError(message string, err error) *EngineError {
	return newError(ErrorClassPermanent, message, err)
}

// WithResource adds the resource URL to an error.
func (e *EngineError) WithResource(url string) *EngineError {
	e.Resource = url
	return e
}

// WithTask adds the sort key of the failing task.
func (e *EngineError) WithTask(sortKey string) *EngineError {
	e.Task = sortKey
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail records a key/value pair for logs.
func (e *EngineError) WithDetail(key string, value any) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func classOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsTransient reports whether err wraps a transient EngineError.
func IsTransient(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassTransient
}

// IsPermanent reports whether err wraps a permanent EngineError.
func IsPermanent(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassPermanent
}

// IsRetryable returns true if the error can be retried.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	c, ok := classOf(err)
	return !ok || c != ErrorClassPermanent
}

// Classify returns the class and code of err for metrics and logs.
// Unclassified errors report as transient with the internal code.
func Classify(err error) (ErrorClass, string) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, e.Code
	}
	return ErrorClassTransient, ErrCodeInternal
}

// Error codes raised by installer tasks.
const (
	ErrCodeMalformedMetadata = "MALFORMED_METADATA"
	ErrCodeInstallFailed     = "INSTALL_FAILED"
	ErrCodeStartFailed       = "START_FAILED"
	ErrCodeNoContent         = "NO_CONTENT"
	ErrCodeInternal          = "INTERNAL_ERROR"
)
