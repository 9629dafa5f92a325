package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/enterprise-hub/account-service/internal/api/metrics"
	"github.com/enterprise-hub/account-service/internal/api/middleware"
	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
	"github.com/enterprise-hub/account-service/internal/core/service"
)

const refreshCookieMaxAge = 30 * 24 * time.Hour

// CookieConfig controls the session cookies set on login.
type CookieConfig struct {
	Secure bool
	Domain string
}

type AuthHandler struct {
	accounts ports.AccountService
	cookies  CookieConfig
}

func NewAuthHandler(accounts ports.AccountService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{accounts: accounts, cookies: cookies}
}

// Login authenticates with email and password and authorises the account.
//
// @Summary      Login
// @Description  Authenticates against the identity provider, then checks the profile and approval status. On success the provider session is returned and set as HttpOnly cookies.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  Response
// @Failure      400   {object}  Response
// @Failure      401   {object}  Response
// @Failure      403   {object}  Response  "ACCOUNT_NOT_APPROVED, with status"
// @Failure      404   {object}  Response
// @Failure      500   {object}  Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) (err error) {
	defer observe("login", time.Now(), &err)

	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setSessionCookies(c, res.Session)
	user := res.User
	return c.JSON(http.StatusOK, Response{Success: true, User: &user, Session: res.Session})
}

// Register provisions a new account, profile and primary membership.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration form"
// @Success      201   {object}  Response
// @Failure      400   {object}  Response
// @Failure      409   {object}  Response
// @Failure      500   {object}  Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) (err error) {
	defer observe("register", time.Now(), &err)

	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.accounts.Register(c.Request().Context(), ports.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		OrgID:    req.OrgID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, Response{Success: true, User: user, Message: service.RegistrationMessage})
}

// RequestPasswordReset emails a password recovery link.
//
// @Summary      Request a password reset email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetRequest  true  "Account email"
// @Success      200   {object}  Response
// @Failure      400   {object}  Response
// @Router       /auth/password/reset [post]
func (h *AuthHandler) RequestPasswordReset(c echo.Context) (err error) {
	defer observe("password_reset", time.Now(), &err)

	var req resetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.accounts.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: service.ResetRequestMessage})
}

// UpdatePassword sets a new password for the recovery session opened by the
// reset link.
//
// @Summary      Set a new password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updatePasswordRequest  true  "New password, twice"
// @Success      200   {object}  Response
// @Failure      400   {object}  Response
// @Failure      401   {object}  Response
// @Router       /auth/password/update [post]
func (h *AuthHandler) UpdatePassword(c echo.Context) (err error) {
	defer observe("password_update", time.Now(), &err)

	var req updatePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.accounts.UpdatePasswordWithToken(c.Request().Context(), ctxSession(c), req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: service.PasswordResetMessage})
}

// Logout ends the caller's session and clears the session cookies.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  Response
// @Failure      401   {object}  Response
// @Failure      500   {object}  Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) (err error) {
	defer observe("logout", time.Now(), &err)

	h.clearSessionCookies(c)
	if err := h.accounts.Logout(c.Request().Context(), ctxSession(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true})
}

func (h *AuthHandler) setSessionCookies(c echo.Context, s *domain.Session) {
	if s == nil {
		return
	}
	maxAge := s.ExpiresIn
	if maxAge <= 0 {
		maxAge = int(time.Until(s.ExpiresAt).Seconds())
	}
	c.SetCookie(h.cookie(middleware.AccessTokenCookie, s.AccessToken, maxAge))
	if s.RefreshToken != "" {
		c.SetCookie(h.cookie(middleware.RefreshTokenCookie, s.RefreshToken, int(refreshCookieMaxAge.Seconds())))
	}
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	c.SetCookie(h.cookie(middleware.AccessTokenCookie, "", -1))
	c.SetCookie(h.cookie(middleware.RefreshTokenCookie, "", -1))
}

func (h *AuthHandler) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func observe(operation string, start time.Time, err *error) {
	metrics.Observe(operation, start, *err)
}
