package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/api/handler"
	"github.com/enterprise-hub/account-service/internal/api/metrics"
	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// Transport-level codes for errors raised by echo rather than the workflow.
const (
	codeInvalidRequest   = metrics.OutcomeInvalidRequest
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeRateLimited      = "RATE_LIMITED"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps workflow error codes to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders the account envelope with success=false.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, handler.Response) {
	var ae *domain.AuthError
	if errors.As(err, &ae) {
		status := StatusFor(ae.Code)
		if status >= http.StatusInternalServerError {
			log.Error().
				Str("error_code", string(ae.Code)).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg(ae.Message)
		}
		return status, handler.ErrorResponse(ae)
	}

	// Echo's own errors (bind failures, 404 from router, rate limiter, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, handler.Response{
			Error:     fmt.Sprintf("%v", he.Message),
			ErrorCode: transportCode(he.Code),
		}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, handler.ErrorResponse(err)
}

// StatusFor maps a workflow error code to its HTTP status.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidCredentials, domain.CodeUnauthorized, domain.CodeSessionRequired:
		return http.StatusUnauthorized
	case domain.CodeAccountNotApproved, domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeProfileNotFound:
		return http.StatusNotFound
	case domain.CodeUserExists:
		return http.StatusConflict
	case domain.CodeMissingFields, domain.CodeMissingEmail, domain.CodeMissingPassword,
		domain.CodePasswordMismatch, domain.CodePasswordTooShort, domain.CodeInvalidStatus:
		return http.StatusBadRequest
	case domain.CodeAuthCreateFailed, domain.CodeResetRequestFailed, domain.CodeUpdateFailed:
		return http.StatusUnprocessableEntity
	case domain.CodeLogoutFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func transportCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusMethodNotAllowed:
		return codeMethodNotAllowed
	case http.StatusTooManyRequests:
		return codeRateLimited
	case http.StatusUnauthorized:
		return string(domain.CodeUnauthorized)
	case http.StatusForbidden:
		return string(domain.CodeForbidden)
	}
	if status >= http.StatusInternalServerError {
		return string(domain.CodeUnknownError)
	}
	return codeInvalidRequest
}
