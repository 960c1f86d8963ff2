package firebase

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/lorrc/accounts/internal/core/errors"
)

const backendName = "firebase"

// identityCodes maps Identity Toolkit error messages to normalised codes.
var identityCodes = map[string]apperrors.BackendCode{
	"EMAIL_EXISTS":                apperrors.CodeEmailAlreadyInUse,
	"INVALID_PASSWORD":            apperrors.CodeWrongPassword,
	"EMAIL_NOT_FOUND":             apperrors.CodeUserNotFound,
	"USER_NOT_FOUND":              apperrors.CodeUserNotFound,
	"INVALID_LOGIN_CREDENTIALS":   apperrors.CodeInvalidLoginCredentials,
	"INVALID_EMAIL":               apperrors.CodeInvalidEmail,
	"MISSING_PASSWORD":            apperrors.CodeMissingPassword,
	"WEAK_PASSWORD":               apperrors.CodeWeakPassword,
	"TOO_MANY_ATTEMPTS_TRY_LATER": apperrors.CodeTooManyRequests,
	"USER_DISABLED":               apperrors.CodeUserDisabled,
	"INVALID_ID_TOKEN":            apperrors.CodeInvalidToken,
	"TOKEN_EXPIRED":               apperrors.CodeInvalidToken,
	"INVALID_REFRESH_TOKEN":       apperrors.CodeInvalidToken,
	"OPERATION_NOT_ALLOWED":       apperrors.CodeOperationNotAllowed,
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseIdentityError turns an Identity Toolkit error body into a BackendError.
// Messages look like "WEAK_PASSWORD : Password should be at least 6 characters".
func parseIdentityError(status int, body []byte) *apperrors.BackendError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return apperrors.NewBackendError(backendName, apperrors.CodeUnknown, "", httpStatusMessage(status, body))
	}

	raw, detail, _ := strings.Cut(env.Error.Message, " : ")
	raw = strings.TrimSpace(raw)

	code, ok := identityCodes[raw]
	if !ok {
		code = apperrors.CodeUnknown
	}
	return apperrors.NewBackendError(backendName, code, raw, strings.TrimSpace(detail))
}

func httpStatusMessage(status int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Sprintf("unexpected status %d", status)
	}
	return fmt.Sprintf("unexpected status %d: %s", status, msg)
}
