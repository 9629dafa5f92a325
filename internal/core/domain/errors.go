package domain

import (
	"errors"
	"fmt"
)

// Store and provider sentinels.
var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ErrorCode is the machine-readable failure reason returned to callers.
type ErrorCode string

const (
	CodeInvalidCredentials     ErrorCode = "INVALID_CREDENTIALS"
	CodeServerError            ErrorCode = "SERVER_ERROR"
	CodeProfileNotFound        ErrorCode = "PROFILE_NOT_FOUND"
	CodeAccountNotApproved     ErrorCode = "ACCOUNT_NOT_APPROVED"
	CodeUnknownError           ErrorCode = "UNKNOWN_ERROR"
	CodeMissingFields          ErrorCode = "MISSING_FIELDS"
	CodeUserExists             ErrorCode = "USER_EXISTS"
	CodeAuthCreateFailed       ErrorCode = "AUTH_CREATE_FAILED"
	CodeProfileCreateFailed    ErrorCode = "PROFILE_CREATE_FAILED"
	CodeMembershipCreateFailed ErrorCode = "MEMBERSHIP_CREATE_FAILED"
	CodeMissingEmail           ErrorCode = "MISSING_EMAIL"
	CodeResetRequestFailed     ErrorCode = "RESET_REQUEST_FAILED"
	CodeMissingPassword        ErrorCode = "MISSING_PASSWORD"
	CodePasswordMismatch       ErrorCode = "PASSWORD_MISMATCH"
	CodePasswordTooShort       ErrorCode = "PASSWORD_TOO_SHORT"
	CodeUpdateFailed           ErrorCode = "UPDATE_FAILED"
	CodeSessionRequired        ErrorCode = "SESSION_REQUIRED"
	CodeLogoutFailed           ErrorCode = "LOGOUT_FAILED"
	CodeInvalidStatus          ErrorCode = "INVALID_STATUS"
	CodeForbidden              ErrorCode = "FORBIDDEN"
	CodeUnauthorized           ErrorCode = "UNAUTHORIZED"
)

// AuthError is the only error type returned by the account workflow.
// Status is set for ACCOUNT_NOT_APPROVED so callers can show context.
type AuthError struct {
	Code    ErrorCode
	Message string
	Status  AccountStatus
}

func (e *AuthError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s (status %s)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError builds an AuthError with the given code and message.
func NewAuthError(code ErrorCode, msg string) *AuthError {
	return &AuthError{Code: code, Message: msg}
}

// CodeOf extracts the ErrorCode carried by err, or UNKNOWN_ERROR.
func CodeOf(err error) ErrorCode {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknownError
}

// ProviderError is a rejection reported by the identity provider. Message is
// safe to show to the end user.
type ProviderError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("identity provider: %s (%d %s)", e.Message, e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("identity provider: %s (%d)", e.Message, e.StatusCode)
}
