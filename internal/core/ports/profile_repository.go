package ports

import (
	"context"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// ProfileRepository persists profiles and memberships. Implementations are
// constructed with elevated store credentials.
type ProfileRepository interface {
	// FindWithMemberships loads the profile with its memberships (primary
	// first, then oldest) and each membership's role name.
	FindWithMemberships(ctx context.Context, id string) (*domain.Profile, error)
	// FindByEmail returns domain.ErrProfileNotFound when no profile exists.
	FindByEmail(ctx context.Context, email string) (*domain.Profile, error)
	// CreateProfile returns domain.ErrUserExists on a unique email conflict.
	CreateProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	DeleteProfile(ctx context.Context, id string) error
	UpdateAccountStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.Profile, error)
	Ping(ctx context.Context) error
}
