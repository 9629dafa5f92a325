package middleware

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/api/metrics"
	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const (
	// ContextKeySession holds the verified domain.SessionContext.
	ContextKeySession = "session"

	// AccessTokenCookie and RefreshTokenCookie carry the provider session
	// for browser clients.
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"

	authenticatedAudience = "authenticated"
)

var errUnauthorized = domain.NewAuthError(domain.CodeUnauthorized, "Authentication required.")

// sessionClaims is the subset of the provider access token we rely on.
type sessionClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// SessionConfig configures the session gate.
type SessionConfig struct {
	// Secret is the provider project's JWT signing secret.
	Secret string
	// Revoker is optional; revoked sessions are rejected when set.
	Revoker ports.SessionRevoker
	// Optional lets requests without a token through with an empty session.
	// A token that is present must still be valid.
	Optional bool
	Logger   zerolog.Logger
}

// Session verifies the provider access token taken from the Authorization
// header or the access token cookie and stores the resulting
// domain.SessionContext under ContextKeySession.
func Session(cfg SessionConfig) echo.MiddlewareFunc {
	secret := []byte(cfg.Secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	log := cfg.Logger.With().Str("component", "session_gate").Logger()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				metrics.SessionRejectionsTotal.WithLabelValues("malformed_header").Inc()
				return domain.NewAuthError(domain.CodeUnauthorized, err.Error())
			}
			if raw == "" {
				if cfg.Optional {
					c.Set(ContextKeySession, domain.SessionContext{})
					return next(c)
				}
				metrics.SessionRejectionsTotal.WithLabelValues("missing").Inc()
				return errUnauthorized
			}

			claims := &sessionClaims{}
			tkn, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})
			if err != nil || !tkn.Valid || claims.Subject == "" {
				reason := "invalid"
				if errors.Is(err, jwt.ErrTokenExpired) {
					reason = "expired"
				}
				metrics.SessionRejectionsTotal.WithLabelValues(reason).Inc()
				return domain.NewAuthError(domain.CodeUnauthorized, "Invalid or expired session.")
			}
			if len(claims.Audience) > 0 && !slices.Contains(claims.Audience, authenticatedAudience) {
				metrics.SessionRejectionsTotal.WithLabelValues("audience").Inc()
				return domain.NewAuthError(domain.CodeUnauthorized, "Invalid or expired session.")
			}

			session := domain.SessionContext{
				UserID:      claims.Subject,
				Email:       claims.Email,
				SessionID:   claims.SessionID,
				AccessToken: raw,
				ExpiresAt:   claims.ExpiresAt.Time,
			}

			if cfg.Revoker != nil {
				revoked, err := cfg.Revoker.IsRevoked(c.Request().Context(), session.RevocationKey())
				if err != nil {
					// Fail open: the signature already checked out.
					log.Warn().Err(err).Str("user_id", session.UserID).Msg("revocation check failed")
				} else if revoked {
					metrics.SessionRejectionsTotal.WithLabelValues("revoked").Inc()
					return domain.NewAuthError(domain.CodeUnauthorized, "Session has been signed out.")
				}
			}

			c.Set(ContextKeySession, session)
			return next(c)
		}
	}
}

// SessionFrom returns the session stored by Session, if any.
func SessionFrom(c echo.Context) (domain.SessionContext, bool) {
	s, ok := c.Get(ContextKeySession).(domain.SessionContext)
	return s, ok
}

func bearerToken(c echo.Context) (string, error) {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", errors.New("invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if ck, err := c.Cookie(AccessTokenCookie); err == nil && ck.Value != "" {
		return ck.Value, nil
	}
	return "", nil
}

// requireSession is shared by the gates that run after Session.
func requireSession(c echo.Context) (domain.SessionContext, error) {
	s, ok := SessionFrom(c)
	if !ok || !s.Authenticated() {
		return domain.SessionContext{}, errUnauthorized
	}
	return s, nil
}
