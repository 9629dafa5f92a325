package handler

import (
	"errors"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// Response is the envelope every account endpoint answers with, success or
// failure.
type Response struct {
	Success   bool                 `json:"success"`
	Error     string               `json:"error,omitempty"`
	ErrorCode string               `json:"errorCode,omitempty"`
	Status    domain.AccountStatus `json:"status,omitempty"`
	Message   string               `json:"message,omitempty"`
	User      any                  `json:"user,omitempty"`
	Session   *domain.Session      `json:"session,omitempty"`
	Profile   *domain.Profile      `json:"profile,omitempty"`
}

// ErrorResponse renders err into the envelope. Non-workflow errors are
// reported as UNKNOWN_ERROR without their text.
func ErrorResponse(err error) Response {
	var ae *domain.AuthError
	if errors.As(err, &ae) {
		return Response{Error: ae.Message, ErrorCode: string(ae.Code), Status: ae.Status}
	}
	return Response{Error: "An unexpected error occurred.", ErrorCode: string(domain.CodeUnknownError)}
}
