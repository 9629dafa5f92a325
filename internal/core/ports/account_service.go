package ports

import (
	"context"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// UserPayload is the authorised user view returned by Login and CurrentUser.
type UserPayload struct {
	ID              string               `json:"id"`
	Email           string               `json:"email"`
	Name            string               `json:"name"`
	RoleKey         string               `json:"role_key"`
	OrgID           *string              `json:"org_id"`
	AccountStatus   domain.AccountStatus `json:"account_status"`
	IsAuthenticated bool                 `json:"is_authenticated"`
}

// LoginResult carries the authorised user and the provider session.
type LoginResult struct {
	User    UserPayload
	Session *domain.Session
}

// RegisteredUser is the summary returned after a successful registration.
type RegisteredUser struct {
	ID            string               `json:"id"`
	Email         string               `json:"email"`
	Name          string               `json:"name"`
	Role          string               `json:"role"`
	OrgID         string               `json:"org_id"`
	AccountStatus domain.AccountStatus `json:"account_status"`
}

// RegisterInput holds the registration form fields.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	OrgID    string
}

// AccountService is the account provisioning and login authorization
// workflow. Every returned error is a *domain.AuthError.
type AccountService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Register(ctx context.Context, in RegisterInput) (*RegisteredUser, error)
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePasswordWithToken(ctx context.Context, session domain.SessionContext, newPassword, confirmPassword string) error
	Logout(ctx context.Context, session domain.SessionContext) error
	CurrentUser(ctx context.Context, session domain.SessionContext) (*UserPayload, error)
	SetAccountStatus(ctx context.Context, profileID string, status domain.AccountStatus) (*domain.Profile, error)
}

// RoleResolver reports a user's primary role for route gating.
type RoleResolver interface {
	PrimaryRole(ctx context.Context, userID string) (string, error)
}
