package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

var _ ports.CleanupRunner = (*Compensator)(nil)

// Compensator executes retried cleanup tasks against the provider and store.
type Compensator struct {
	admin    ports.IdentityAdmin
	profiles ports.ProfileRepository
}

func NewCompensator(admin ports.IdentityAdmin, profiles ports.ProfileRepository) *Compensator {
	return &Compensator{admin: admin, profiles: profiles}
}

// RunCleanup makes one attempt at task. A profile that is already gone counts
// as done.
func (c *Compensator) RunCleanup(ctx context.Context, task ports.CleanupTask) error {
	if task.AccountID == "" {
		return errors.New("cleanup: empty account id")
	}
	switch task.Kind {
	case ports.CleanupDeleteAccount:
		if c.admin == nil {
			return errors.New("cleanup: identity admin is not configured")
		}
		return c.admin.DeleteAccount(ctx, task.AccountID)
	case ports.CleanupDeleteProfile:
		if c.profiles == nil {
			return errors.New("cleanup: profile store is not configured")
		}
		err := c.profiles.DeleteProfile(ctx, task.AccountID)
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("cleanup: unknown kind %q", task.Kind)
	}
}
