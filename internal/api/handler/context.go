package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/enterprise-hub/account-service/internal/api/middleware"
	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// ctxSession returns the session verified by the session gate. Routes behind
// the optional gate get an empty session when no token was sent; the
// workflow decides what that means.
func ctxSession(c echo.Context) domain.SessionContext {
	s, _ := middleware.SessionFrom(c)
	return s
}
