package errors

import (
	"errors"
	"fmt"
)

// Account errors - the closed set of account-level failures callers branch on
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyInUse  = errors.New("email already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrSavingData         = errors.New("error saving data")
	// ErrInvalidDataFormat is reserved. Profile reconstruction never fails.
	ErrInvalidDataFormat = errors.New("invalid data format")
)

// Lifecycle errors
var (
	ErrVerificationTimeout  = errors.New("email verification timed out")
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrUnsupportedDataStore = errors.New("unsupported data store")
	ErrUnsupportedIdentity  = errors.New("unsupported identity backend")
)

// Transport errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal server error")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrEmailInvalid = errors.New("email format is invalid")
)

// BackendCode is the normalised code an identity backend adapter assigns
// to a failure recognised by that backend's own code scheme.
type BackendCode string

const (
	CodeEmailAlreadyInUse       BackendCode = "email-already-in-use"
	CodeWrongPassword           BackendCode = "wrong-password"
	CodeUserNotFound            BackendCode = "user-not-found"
	CodeInvalidLoginCredentials BackendCode = "invalid-login-credentials"
	CodeInvalidEmail            BackendCode = "invalid-email"
	CodeMissingPassword         BackendCode = "missing-password"
	CodeWeakPassword            BackendCode = "weak-password"
	CodeTooManyRequests         BackendCode = "too-many-requests"
	CodeUserDisabled            BackendCode = "user-disabled"
	CodeInvalidToken            BackendCode = "invalid-token"
	CodeOperationNotAllowed     BackendCode = "operation-not-allowed"
	CodeUnknown                 BackendCode = "unknown"
)

// BackendError is an opaque failure reported by an external backend.
// Callers that do not recognise the Code should treat it as such.
type BackendError struct {
	Backend string      // e.g. "firebase", "memory"
	Code    BackendCode // normalised code
	RawCode string      // the backend's own code, verbatim
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.RawCode
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s (%s)", e.Backend, msg, e.Code)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is matches another *BackendError by Code, and by Backend when the target sets one.
func (e *BackendError) Is(target error) bool {
	t, ok := target.(*BackendError)
	if !ok {
		return false
	}
	if t.Backend != "" && t.Backend != e.Backend {
		return false
	}
	return t.Code == e.Code
}

// NewBackendError builds a BackendError for the given backend.
func NewBackendError(backend string, code BackendCode, rawCode, message string) *BackendError {
	return &BackendError{
		Backend: backend,
		Code:    code,
		RawCode: rawCode,
		Message: message,
	}
}

// CodeOf returns the normalised backend code carried by err, if any.
func CodeOf(err error) (BackendCode, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code, true
	}
	return "", false
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
