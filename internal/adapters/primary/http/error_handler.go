package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/lorrc/accounts/internal/adapters/primary/http/middleware"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/infrastructure/logging"
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return mw.GetRequestID(ctx)
}

// ErrorResponse is the standard JSON error response format
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ValidationErrorResponse includes field-level validation errors
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error and writes the appropriate HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.logError(r, appErr.StatusCode, err)
		WriteJSON(w, appErr.StatusCode, ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		})
		return
	}

	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		h.logError(r, http.StatusUnprocessableEntity, err)
		WriteJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:  "Validation failed",
			Code:   "VALIDATION_ERROR",
			Fields: validationErrs.Errors,
		})
		return
	}

	statusCode, response := MapError(err)
	h.logError(r, statusCode, err)
	WriteJSON(w, statusCode, response)
}

// MapError converts account and backend errors to HTTP status codes and
// responses. Unrecognised errors become 500 without leaking their text.
func MapError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{
			Error: "Invalid credentials",
			Code:  "INVALID_CREDENTIALS",
		}
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{
			Error: "Authentication required",
			Code:  "UNAUTHORIZED",
		}
	case errors.Is(err, apperrors.ErrUserNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: "User not found",
			Code:  "USER_NOT_FOUND",
		}
	case errors.Is(err, apperrors.ErrEmailAlreadyInUse):
		return http.StatusConflict, ErrorResponse{
			Error: "A user with this email already exists",
			Code:  "EMAIL_ALREADY_IN_USE",
		}
	case errors.Is(err, apperrors.ErrSavingData):
		return http.StatusBadGateway, ErrorResponse{
			Error: "The profile could not be saved",
			Code:  "SAVE_FAILED",
		}
	case errors.Is(err, apperrors.ErrVerificationTimeout):
		return http.StatusGatewayTimeout, ErrorResponse{
			Error: "Email verification timed out",
			Code:  "VERIFICATION_TIMEOUT",
		}
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{
			Error: "Too many requests. Please try again later.",
			Code:  "RATE_LIMITED",
		}
	case errors.Is(err, apperrors.ErrBadRequest),
		errors.Is(err, apperrors.ErrEmailInvalid):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "BAD_REQUEST",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{
			Error: "The account backend did not respond in time",
			Code:  "BACKEND_TIMEOUT",
		}
	}

	if code, ok := apperrors.CodeOf(err); ok {
		return mapBackendCode(code)
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error: "An unexpected error occurred",
		Code:  "INTERNAL_ERROR",
	}
}

// mapBackendCode covers backend failures the account layer passes through
// untranslated.
func mapBackendCode(code apperrors.BackendCode) (int, ErrorResponse) {
	switch code {
	case apperrors.CodeInvalidEmail:
		return http.StatusBadRequest, ErrorResponse{Error: "Must be a valid email address", Code: "INVALID_EMAIL"}
	case apperrors.CodeMissingPassword:
		return http.StatusBadRequest, ErrorResponse{Error: "A password is required", Code: "MISSING_PASSWORD"}
	case apperrors.CodeWeakPassword:
		return http.StatusBadRequest, ErrorResponse{Error: "The password is too weak", Code: "WEAK_PASSWORD"}
	case apperrors.CodeUserNotFound:
		return http.StatusNotFound, ErrorResponse{Error: "User not found", Code: "USER_NOT_FOUND"}
	case apperrors.CodeUserDisabled:
		return http.StatusForbidden, ErrorResponse{Error: "This account has been disabled", Code: "ACCOUNT_DISABLED"}
	case apperrors.CodeInvalidToken:
		return http.StatusUnauthorized, ErrorResponse{Error: "The session has expired, sign in again", Code: "SESSION_EXPIRED"}
	case apperrors.CodeTooManyRequests:
		return http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests. Please try again later.", Code: "RATE_LIMITED"}
	default:
		return http.StatusBadGateway, ErrorResponse{Error: "The account backend rejected the request", Code: "BACKEND_ERROR"}
	}
}

// logError logs the error with appropriate context
func (h *ErrorHandler) logError(r *http.Request, statusCode int, err error) {
	logger := logging.LoggerFromContext(r.Context(), h.logger)
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error", err.Error(),
	}

	switch {
	case statusCode >= 500:
		logger.Error("server error", attrs...)
	case statusCode >= 400:
		logger.Warn("client error", attrs...)
	default:
		logger.Info("request error", attrs...)
	}
}

// HandleError Helper function to handle errors inline in handlers
// Usage: if HandleError(w, r, err, h.errorHandler) { return }
func HandleError(w http.ResponseWriter, r *http.Request, err error, handler *ErrorHandler) bool {
	if err != nil {
		handler.Handle(w, r, err)
		return true
	}
	return false
}
