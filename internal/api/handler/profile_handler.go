package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

type ProfileHandler struct {
	accounts ports.AccountService
}

func NewProfileHandler(accounts ports.AccountService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

// Me returns the authorised view of the caller's own profile.
//
// @Summary      Current user
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  Response
// @Failure      401   {object}  Response
// @Failure      403   {object}  Response
// @Failure      404   {object}  Response
// @Router       /v1/me [get]
func (h *ProfileHandler) Me(c echo.Context) (err error) {
	defer observe("me", time.Now(), &err)

	user, err := h.accounts.CurrentUser(c.Request().Context(), ctxSession(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, User: user})
}

// SetStatus changes a profile's approval status. Administrators only.
//
// @Summary      Set account status
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string         true  "Profile id"
// @Param        body  body      statusRequest  true  "New status"
// @Success      200   {object}  Response
// @Failure      400   {object}  Response
// @Failure      403   {object}  Response
// @Failure      404   {object}  Response
// @Router       /v1/admin/profiles/{id}/status [put]
func (h *ProfileHandler) SetStatus(c echo.Context) (err error) {
	defer observe("set_status", time.Now(), &err)

	var req statusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	profile, err := h.accounts.SetAccountStatus(c.Request().Context(), c.Param("id"), domain.AccountStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Profile: profile})
}
