package api

import (
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/enterprise-hub/account-service/docs"
	"github.com/enterprise-hub/account-service/internal/api/handler"
	"github.com/enterprise-hub/account-service/internal/api/middleware"
	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const (
	defaultAuthRate  = 5
	defaultAuthBurst = 10
	bodyLimit        = "64K"
)

// Dependencies is everything the router needs from main.
type Dependencies struct {
	Accounts  ports.AccountService
	Roles     ports.RoleResolver
	Revoker   ports.SessionRevoker
	JWTSecret string
	Cookies   handler.CookieConfig
	// AuthRateLimit is the per-IP request rate allowed on /auth, per second.
	AuthRateLimit float64
	Readiness     map[string]handler.Checker
	Logger        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Logger))
	e.Use(echomiddleware.BodyLimit(bodyLimit))
	e.Use(echoprometheus.NewMiddleware("account"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Accounts, deps.Cookies)
	profileHandler := handler.NewProfileHandler(deps.Accounts)

	session := middleware.Session(middleware.SessionConfig{
		Secret:  deps.JWTSecret,
		Revoker: deps.Revoker,
		Logger:  deps.Logger,
	})
	// The recovery session check belongs to the workflow, after its own
	// input validation.
	recoverySession := middleware.Session(middleware.SessionConfig{
		Secret:   deps.JWTSecret,
		Revoker:  deps.Revoker,
		Optional: true,
		Logger:   deps.Logger,
	})

	// --- Auth routes ---
	auth := e.Group("/auth", authRateLimiter(deps.AuthRateLimit))
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/password/reset", authHandler.RequestPasswordReset)
	auth.POST("/password/update", authHandler.UpdatePassword, recoverySession)
	auth.POST("/logout", authHandler.Logout, session)

	// --- Session-gated routes ---
	v1 := e.Group("/v1", session)
	v1.GET("/me", profileHandler.Me)

	admin := v1.Group("/admin", middleware.RequireRole(deps.Roles, domain.RoleAdmin))
	admin.PUT("/profiles/:id/status", profileHandler.SetStatus)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)           // liveness
	e.GET("/health/ready", readinessHandler.Readiness) // readiness

	// --- Operational endpoints ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func authRateLimiter(perSecond float64) echo.MiddlewareFunc {
	if perSecond <= 0 {
		perSecond = defaultAuthRate
	}
	burst := int(perSecond * 2)
	if burst < defaultAuthBurst {
		burst = defaultAuthBurst
	}
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 5 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.ErrForbidden
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.ErrTooManyRequests
		},
	})
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
