package ports

import (
	"context"
	"time"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// IdentityProvider is the non-privileged surface of the hosted auth provider.
// Calls that act on behalf of a user take that user's access token.
type IdentityProvider interface {
	// Authenticate performs a password grant. Bad credentials yield
	// domain.ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	SendPasswordResetEmail(ctx context.Context, email, redirectURL string) error
	// UpdatePassword requires a live session, typically the recovery session
	// opened by the emailed reset link.
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}

// IdentityAdmin is the privileged surface, authorised with the service key.
type IdentityAdmin interface {
	CreateAccount(ctx context.Context, email, password string, confirmed bool) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// SessionRevoker remembers signed-out sessions until their tokens expire.
type SessionRevoker interface {
	Revoke(ctx context.Context, key string, until time.Time) error
	IsRevoked(ctx context.Context, key string) (bool, error)
}
