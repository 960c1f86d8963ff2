package services

import (
	"errors"

	apperrors "github.com/lorrc/accounts/internal/core/errors"
)

// Operation names an account operation for error translation.
type Operation string

const (
	OpCreateAccount         Operation = "createAccount"
	OpDeleteAccount         Operation = "deleteAccount"
	OpLogin                 Operation = "login"
	OpLogout                Operation = "logout"
	OpSendEmailVerification Operation = "sendEmailVerification"
	OpResetPassword         Operation = "resetPassword"
	OpSaveUserInfo          Operation = "saveUserInfo"
	OpGetUserInfo           Operation = "getUserInfo"
)

type errorKey struct {
	op   Operation
	code apperrors.BackendCode
}

// errorTable maps (operation, backend code) to a domain error.
// Pairs not listed here pass through unchanged.
var errorTable = map[errorKey]error{
	{OpCreateAccount, apperrors.CodeEmailAlreadyInUse}: apperrors.ErrEmailAlreadyInUse,
	{OpLogin, apperrors.CodeWrongPassword}:             apperrors.ErrInvalidCredentials,
	{OpLogin, apperrors.CodeUserNotFound}:              apperrors.ErrInvalidCredentials,
	{OpLogin, apperrors.CodeInvalidLoginCredentials}:   apperrors.ErrInvalidCredentials,
}

// TranslateError maps a backend failure raised during op to the domain
// vocabulary. Errors that are not *BackendError, and backend codes the table
// does not list for op, are returned as is.
func TranslateError(op Operation, err error) error {
	if err == nil {
		return nil
	}
	var be *apperrors.BackendError
	if !errors.As(err, &be) {
		return err
	}
	if mapped, ok := errorTable[errorKey{op, be.Code}]; ok {
		return mapped
	}
	return err
}
