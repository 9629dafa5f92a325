package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/api/handler"
	"github.com/enterprise-hub/account-service/internal/api/middleware"
	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const routerSecret = "router-test-secret-router-test-secret"

// routerAccounts answers from fixed values; tests adjust the fields they need.
type routerAccounts struct {
	role       string
	updateErr  error
	gotSession domain.SessionContext
}

func (s *routerAccounts) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	if password != "good-password" {
		return nil, domain.NewAuthError(domain.CodeInvalidCredentials, "Invalid email or password.")
	}
	return &ports.LoginResult{
		User:    ports.UserPayload{ID: "u-1", Email: email, RoleKey: domain.RoleStudentL1, AccountStatus: domain.StatusApproved, IsAuthenticated: true},
		Session: &domain.Session{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600, ExpiresAt: time.Now().Add(time.Hour)},
	}, nil
}

func (s *routerAccounts) Register(ctx context.Context, in ports.RegisterInput) (*ports.RegisteredUser, error) {
	return nil, domain.NewAuthError(domain.CodeMissingFields, "All fields are required.")
}

func (s *routerAccounts) RequestPasswordReset(ctx context.Context, email string) error {
	return nil
}

func (s *routerAccounts) UpdatePasswordWithToken(ctx context.Context, session domain.SessionContext, newPassword, confirmPassword string) error {
	s.gotSession = session
	return s.updateErr
}

func (s *routerAccounts) Logout(ctx context.Context, session domain.SessionContext) error {
	return nil
}

func (s *routerAccounts) CurrentUser(ctx context.Context, session domain.SessionContext) (*ports.UserPayload, error) {
	return &ports.UserPayload{ID: session.UserID, Email: session.Email, RoleKey: s.role, AccountStatus: domain.StatusApproved, IsAuthenticated: true}, nil
}

func (s *routerAccounts) SetAccountStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.Profile, error) {
	return &domain.Profile{ID: id, AccountStatus: status}, nil
}

func (s *routerAccounts) PrimaryRole(ctx context.Context, userID string) (string, error) {
	return s.role, nil
}

var (
	testAccounts = &routerAccounts{}
	testRouter   *echo.Echo
)

// The router registers its HTTP metrics with the default registry, so it is
// built once for the package.
func TestMain(m *testing.M) {
	testRouter = NewRouter(Dependencies{
		Accounts:      testAccounts,
		Roles:         testAccounts,
		JWTSecret:     routerSecret,
		AuthRateLimit: 1000,
		Readiness: map[string]handler.Checker{
			"store": func(context.Context) error { return nil },
		},
		Logger: zerolog.Nop(),
	})
	os.Exit(m.Run())
}

func bearer(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        "u-1",
		"email":      "alice@example.com",
		"session_id": "s-1",
		"aud":        "authenticated",
		"exp":        time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(routerSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + signed
}

func serve(t *testing.T, method, path, body, authz string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	testRouter.ServeHTTP(rec, req)

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestRouter_Health(t *testing.T) {
	rec, _ := serve(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec, resp := serve(t, http.MethodGet, "/health/ready", "", "")
	if rec.Code != http.StatusOK || resp["status"] != "ok" {
		t.Fatalf("unexpected readiness: %d %+v", rec.Code, resp)
	}
}

func TestRouter_Login(t *testing.T) {
	rec, resp := serve(t, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"good-password"}`, "")
	if rec.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("unexpected: %d %+v", rec.Code, resp)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), middleware.AccessTokenCookie) {
		t.Fatalf("expected session cookie, got %q", rec.Header().Values("Set-Cookie"))
	}

	rec, resp = serve(t, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"bad"}`, "")
	if rec.Code != http.StatusUnauthorized || resp["errorCode"] != "INVALID_CREDENTIALS" || resp["success"] != false {
		t.Fatalf("unexpected: %d %+v", rec.Code, resp)
	}
}

func TestRouter_RegisterErrorEnvelope(t *testing.T) {
	rec, resp := serve(t, http.MethodPost, "/auth/register", `{}`, "")
	if rec.Code != http.StatusBadRequest || resp["errorCode"] != "MISSING_FIELDS" {
		t.Fatalf("unexpected: %d %+v", rec.Code, resp)
	}
}

func TestRouter_SessionGate(t *testing.T) {
	testAccounts.role = domain.RoleStudentL1

	rec, resp := serve(t, http.MethodGet, "/v1/me", "", "")
	if rec.Code != http.StatusUnauthorized || resp["errorCode"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected: %d %+v", rec.Code, resp)
	}

	rec, resp = serve(t, http.MethodGet, "/v1/me", "", bearer(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %+v", rec.Code, resp)
	}
	if user := resp["user"].(map[string]any); user["id"] != "u-1" || user["email"] != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestRouter_AdminGate(t *testing.T) {
	testAccounts.role = domain.RoleStudentL1
	rec, resp := serve(t, http.MethodPut, "/v1/admin/profiles/u-9/status", `{"status":"APPROVED"}`, bearer(t))
	if rec.Code != http.StatusForbidden || resp["errorCode"] != "FORBIDDEN" {
		t.Fatalf("unexpected: %d %+v", rec.Code, resp)
	}

	testAccounts.role = domain.RoleAdmin
	rec, resp = serve(t, http.MethodPut, "/v1/admin/profiles/u-9/status", `{"status":"APPROVED"}`, bearer(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %+v", rec.Code, resp)
	}
}

func TestRouter_PasswordUpdateWithoutSessionReachesWorkflow(t *testing.T) {
	testAccounts.updateErr = domain.NewAuthError(domain.CodeSessionRequired, "expired")
	defer func() { testAccounts.updateErr = nil }()

	rec, resp := serve(t, http.MethodPost, "/auth/password/update", `{"new_password":"abcdef","confirm_password":"abcdef"}`, "")
	if rec.Code != http.StatusUnauthorized || resp["errorCode"] != "SESSION_REQUIRED" {
		t.Fatalf("unexpected: %d %+v", rec.Code, resp)
	}
	if testAccounts.gotSession.AccessToken != "" {
		t.Fatalf("expected empty session, got %+v", testAccounts.gotSession)
	}
}

func TestRouter_Metrics(t *testing.T) {
	serve(t, http.MethodGet, "/health", "", "")
	rec, _ := serve(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "account_") {
		t.Fatalf("expected prometheus exposition, got %d", rec.Code)
	}
}
