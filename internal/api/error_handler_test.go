package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

func render(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	var body map[string]any
	if e := json.Unmarshal(rec.Body.Bytes(), &body); e != nil {
		t.Fatalf("invalid json: %v", e)
	}
	return rec.Code, body
}

func TestHTTPErrorHandler_AuthErrors(t *testing.T) {
	cases := []struct {
		code   domain.ErrorCode
		status int
	}{
		{domain.CodeInvalidCredentials, http.StatusUnauthorized},
		{domain.CodeSessionRequired, http.StatusUnauthorized},
		{domain.CodeAccountNotApproved, http.StatusForbidden},
		{domain.CodeProfileNotFound, http.StatusNotFound},
		{domain.CodeUserExists, http.StatusConflict},
		{domain.CodeMissingFields, http.StatusBadRequest},
		{domain.CodePasswordTooShort, http.StatusBadRequest},
		{domain.CodeAuthCreateFailed, http.StatusUnprocessableEntity},
		{domain.CodeServerError, http.StatusInternalServerError},
		{domain.CodeUnknownError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			status, body := render(t, domain.NewAuthError(tc.code, "msg"))
			if status != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, status)
			}
			if body["success"] != false || body["errorCode"] != string(tc.code) || body["error"] != "msg" {
				t.Fatalf("unexpected body: %+v", body)
			}
		})
	}
}

func TestHTTPErrorHandler_NotApprovedCarriesStatus(t *testing.T) {
	_, body := render(t, &domain.AuthError{
		Code:    domain.CodeAccountNotApproved,
		Message: "wait",
		Status:  domain.StatusPendingApproval,
	})
	if body["status"] != "PENDING_APPROVAL" {
		t.Fatalf("expected status in envelope, got %+v", body)
	}
}

func TestHTTPErrorHandler_EchoErrors(t *testing.T) {
	status, body := render(t, echo.NewHTTPError(http.StatusBadRequest, "invalid payload"))
	if status != http.StatusBadRequest || body["errorCode"] != codeInvalidRequest || body["error"] != "invalid payload" {
		t.Fatalf("unexpected: %d %+v", status, body)
	}

	status, body = render(t, echo.ErrTooManyRequests)
	if status != http.StatusTooManyRequests || body["errorCode"] != codeRateLimited {
		t.Fatalf("unexpected: %d %+v", status, body)
	}
}

func TestHTTPErrorHandler_UnexpectedErrorIsHidden(t *testing.T) {
	status, body := render(t, errors.New("pq: connection refused"))
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if body["errorCode"] != string(domain.CodeUnknownError) || body["error"] == "pq: connection refused" {
		t.Fatalf("internal error leaked: %+v", body)
	}
}
