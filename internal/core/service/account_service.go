package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const (
	minPasswordLength = 6
	resetPath         = "/auth/reset-password"

	RegistrationMessage  = "Registration successful. Please log in with your credentials."
	ResetRequestMessage  = "Password reset email sent. Please check your inbox."
	PasswordResetMessage = "Password updated successfully."
)

var (
	_ ports.AccountService = (*AccountService)(nil)
	_ ports.RoleResolver   = (*AccountService)(nil)
)

// Options configures the policy decisions of the workflow.
type Options struct {
	// AdminEmails receive the ADMIN role on registration. Matching is
	// case-insensitive.
	AdminEmails []string
	// InitialStatus is assigned to new profiles. Matching is
	// case-insensitive; empty or unknown values mean APPROVED.
	InitialStatus domain.AccountStatus
	// SiteURL is the public base URL the reset email links back to.
	SiteURL string
	// Revoker is optional; when set, signed-out sessions are remembered.
	Revoker ports.SessionRevoker
	// Cleanup is optional; compensating deletes that fail inline are handed
	// to it for retry.
	Cleanup ports.CleanupQueue
}

// AccountService implements ports.AccountService on top of the identity
// provider and the profile store.
type AccountService struct {
	identity ports.IdentityProvider
	admin    ports.IdentityAdmin
	profiles ports.ProfileRepository
	revoker  ports.SessionRevoker
	cleanup  ports.CleanupQueue

	admins        AdminAllowList
	initialStatus domain.AccountStatus
	resetRedirect string
	newID         func() string
	log           zerolog.Logger
}

// NewAccountService wires the workflow. admin and profiles may be nil when
// the elevated credentials are not configured; operations that need them
// then fail with SERVER_ERROR.
func NewAccountService(
	identity ports.IdentityProvider,
	admin ports.IdentityAdmin,
	profiles ports.ProfileRepository,
	opts Options,
	log zerolog.Logger,
) *AccountService {
	log = log.With().Str("component", "account_service").Logger()

	status := domain.AccountStatus(strings.ToUpper(strings.TrimSpace(string(opts.InitialStatus))))
	if status == "" {
		status = domain.StatusApproved
	}
	if !status.Known() {
		log.Warn().Str("status", string(opts.InitialStatus)).Msg("unknown initial account status, using APPROVED")
		status = domain.StatusApproved
	}
	return &AccountService{
		identity:      identity,
		admin:         admin,
		profiles:      profiles,
		revoker:       opts.Revoker,
		cleanup:       opts.Cleanup,
		admins:        NewAdminAllowList(opts.AdminEmails),
		initialStatus: status,
		resetRedirect: strings.TrimRight(opts.SiteURL, "/") + resetPath,
		newID:         uuid.NewString,
		log:           log,
	}
}

// Login authenticates against the provider, then authorises the account
// against its profile. Any session opened for an account that fails
// authorisation is signed out before returning.
func (s *AccountService) Login(ctx context.Context, email, password string) (res *ports.LoginResult, err error) {
	var steps undo
	defer s.recoverAs("login", "An unexpected error occurred during login.", &err, steps.run)
	return s.login(ctx, email, password, &steps)
}

func (s *AccountService) login(ctx context.Context, email, password string, steps *undo) (*ports.LoginResult, error) {
	invalid := domain.NewAuthError(domain.CodeInvalidCredentials, "Invalid email or password.")
	if email == "" || password == "" {
		return nil, invalid
	}

	session, err := s.identity.Authenticate(ctx, email, password)
	if err != nil || session == nil || session.Account == nil {
		if err != nil && !errors.Is(err, domain.ErrInvalidCredentials) {
			s.log.Warn().Err(err).Msg("authenticate failed")
		}
		return nil, invalid
	}
	steps.push(func() { s.signOut(ctx, session.AccessToken) })

	if s.profiles == nil {
		s.signOut(ctx, session.AccessToken)
		return nil, domain.NewAuthError(domain.CodeServerError, "Server configuration error")
	}

	profile, err := s.profiles.FindWithMemberships(ctx, session.Account.ID)
	if err != nil {
		s.signOut(ctx, session.AccessToken)
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, domain.NewAuthError(domain.CodeProfileNotFound, "User profile not found.")
		}
		s.log.Error().Err(err).Str("user_id", session.Account.ID).Msg("load profile failed")
		return nil, domain.NewAuthError(domain.CodeUnknownError, "An unexpected error occurred during login.")
	}

	if !profile.Approved() {
		s.signOut(ctx, session.AccessToken)
		return nil, notApproved(profile.AccountStatus)
	}

	s.log.Info().Str("user_id", profile.ID).Str("role", profile.RoleKey()).Msg("login succeeded")
	return &ports.LoginResult{User: toPayload(profile), Session: session}, nil
}

// Register provisions the provider account, the profile and the primary
// membership. A failure after the account exists rolls back what was
// created so far.
func (s *AccountService) Register(ctx context.Context, in ports.RegisterInput) (res *ports.RegisteredUser, err error) {
	var steps undo
	defer s.recoverAs("register", "An unexpected error occurred during registration.", &err, steps.run)
	return s.register(ctx, in, &steps)
}

func (s *AccountService) register(ctx context.Context, in ports.RegisterInput, steps *undo) (*ports.RegisteredUser, error) {
	// Stored as typed; the stores match emails case-insensitively.
	email := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.Name)
	orgID := strings.TrimSpace(in.OrgID)
	if email == "" || in.Password == "" || name == "" || orgID == "" {
		return nil, domain.NewAuthError(domain.CodeMissingFields, "All fields are required.")
	}

	if s.admin == nil || s.profiles == nil {
		return nil, domain.NewAuthError(domain.CodeServerError, "Server configuration error")
	}

	userExists := domain.NewAuthError(domain.CodeUserExists, "User with this email already exists.")

	// Fast path only; the unique index on email is authoritative.
	if _, err := s.profiles.FindByEmail(ctx, email); err == nil {
		return nil, userExists
	} else if !errors.Is(err, domain.ErrProfileNotFound) {
		s.log.Error().Err(err).Msg("existence check failed")
		return nil, domain.NewAuthError(domain.CodeUnknownError, "An unexpected error occurred during registration.")
	}

	account, err := s.admin.CreateAccount(ctx, email, in.Password, false)
	if err != nil || account == nil {
		return nil, domain.NewAuthError(domain.CodeAuthCreateFailed,
			providerMessage(err, "Failed to create authentication user."))
	}
	steps.push(func() { s.deleteAccount(ctx, account.ID) })

	now := time.Now().UTC()
	profile, err := s.profiles.CreateProfile(ctx, &domain.Profile{
		ID:            account.ID,
		Email:         email,
		FullName:      name,
		OrgID:         orgID,
		AccountStatus: s.initialStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil || profile == nil {
		s.deleteAccount(ctx, account.ID)
		if errors.Is(err, domain.ErrUserExists) {
			return nil, userExists
		}
		s.log.Error().Err(err).Str("user_id", account.ID).Msg("create profile failed")
		return nil, domain.NewAuthError(domain.CodeProfileCreateFailed, "Failed to create user profile.")
	}
	steps.push(func() { s.deleteProfile(ctx, account.ID) })

	role := s.admins.RoleFor(email)
	if err := s.profiles.CreateMembership(ctx, &domain.Membership{
		ID:        s.newID(),
		UserID:    account.ID,
		OrgID:     orgID,
		Role:      role,
		IsPrimary: true,
		CreatedAt: now,
	}); err != nil {
		s.log.Error().Err(err).Str("user_id", account.ID).Msg("create membership failed")
		s.deleteProfile(ctx, account.ID)
		s.deleteAccount(ctx, account.ID)
		return nil, domain.NewAuthError(domain.CodeMembershipCreateFailed, "Failed to create membership.")
	}

	s.log.Info().Str("user_id", account.ID).Str("org_id", orgID).Str("role", role).Msg("account registered")

	return &ports.RegisteredUser{
		ID:            profile.ID,
		Email:         profile.Email,
		Name:          profile.FullName,
		Role:          role,
		OrgID:         orgID,
		AccountStatus: profile.AccountStatus,
	}, nil
}

// RequestPasswordReset asks the provider to email a recovery link.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer s.recoverAs("password_reset", "An unexpected error occurred.", &err)

	email = strings.TrimSpace(email)
	if email == "" {
		return domain.NewAuthError(domain.CodeMissingEmail, "Email is required.")
	}

	if err := s.identity.SendPasswordResetEmail(ctx, email, s.resetRedirect); err != nil {
		s.log.Warn().Err(err).Msg("reset request rejected")
		return domain.NewAuthError(domain.CodeResetRequestFailed, providerMessage(err, "Failed to send reset email."))
	}
	return nil
}

// UpdatePasswordWithToken sets a new password for the caller's recovery
// session. Input rules are checked before the provider is contacted.
func (s *AccountService) UpdatePasswordWithToken(ctx context.Context, session domain.SessionContext, newPassword, confirmPassword string) (err error) {
	defer s.recoverAs("password_update", "An unexpected error occurred.", &err)

	if err := ValidateNewPassword(newPassword, confirmPassword); err != nil {
		return err
	}
	if session.AccessToken == "" {
		return domain.NewAuthError(domain.CodeSessionRequired, "Your reset session has expired. Please request a new link.")
	}

	if err := s.identity.UpdatePassword(ctx, session.AccessToken, newPassword); err != nil {
		s.log.Warn().Err(err).Str("user_id", session.UserID).Msg("password update rejected")
		return domain.NewAuthError(domain.CodeUpdateFailed, providerMessage(err, "Failed to update password."))
	}

	s.log.Info().Str("user_id", session.UserID).Msg("password updated")
	return nil
}

// ValidateNewPassword applies the local password rules in order, stopping at
// the first violation.
func ValidateNewPassword(newPassword, confirmPassword string) error {
	if newPassword == "" || confirmPassword == "" {
		return domain.NewAuthError(domain.CodeMissingPassword, "Both password fields are required.")
	}
	if newPassword != confirmPassword {
		return domain.NewAuthError(domain.CodePasswordMismatch, "Passwords do not match.")
	}
	// Length is in UTF-16 code units, as browsers measure it: a character
	// outside the BMP counts twice.
	if passwordLength(newPassword) < minPasswordLength {
		return domain.NewAuthError(domain.CodePasswordTooShort, "Password must be at least 6 characters long.")
	}
	return nil
}

func passwordLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Logout ends the caller's provider session and, when a revoker is
// configured, rejects the access token for the rest of its lifetime.
func (s *AccountService) Logout(ctx context.Context, session domain.SessionContext) (err error) {
	defer s.recoverAs("logout", "Failed to logout.", &err)

	if session.AccessToken == "" {
		return nil
	}
	if err := s.identity.SignOut(ctx, session.AccessToken); err != nil {
		s.log.Warn().Err(err).Str("user_id", session.UserID).Msg("sign out failed")
		return domain.NewAuthError(domain.CodeLogoutFailed, "Failed to logout.")
	}

	if s.revoker != nil {
		if key := session.RevocationKey(); key != "" {
			if err := s.revoker.Revoke(ctx, key, session.ExpiresAt); err != nil {
				s.log.Warn().Err(err).Str("user_id", session.UserID).Msg("failed to record revoked session")
			}
		}
	}
	return nil
}

// CurrentUser resolves the authorised view of the caller's own profile.
func (s *AccountService) CurrentUser(ctx context.Context, session domain.SessionContext) (res *ports.UserPayload, err error) {
	defer s.recoverAs("current_user", "An unexpected error occurred.", &err)

	if !session.Authenticated() {
		return nil, domain.NewAuthError(domain.CodeUnauthorized, "Authentication required.")
	}
	if s.profiles == nil {
		return nil, domain.NewAuthError(domain.CodeServerError, "Server configuration error")
	}

	profile, err := s.profiles.FindWithMemberships(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, domain.NewAuthError(domain.CodeProfileNotFound, "User profile not found.")
		}
		s.log.Error().Err(err).Str("user_id", session.UserID).Msg("load profile failed")
		return nil, domain.NewAuthError(domain.CodeUnknownError, "An unexpected error occurred.")
	}
	if !profile.Approved() {
		return nil, notApproved(profile.AccountStatus)
	}

	payload := toPayload(profile)
	return &payload, nil
}

// SetAccountStatus is the administrator approval step.
func (s *AccountService) SetAccountStatus(ctx context.Context, profileID string, status domain.AccountStatus) (res *domain.Profile, err error) {
	defer s.recoverAs("set_status", "An unexpected error occurred.", &err)

	if !status.Known() {
		return nil, domain.NewAuthError(domain.CodeInvalidStatus, "Unknown account status.")
	}
	if s.profiles == nil {
		return nil, domain.NewAuthError(domain.CodeServerError, "Server configuration error")
	}

	profile, err := s.profiles.UpdateAccountStatus(ctx, profileID, status)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, domain.NewAuthError(domain.CodeProfileNotFound, "User profile not found.")
		}
		s.log.Error().Err(err).Str("user_id", profileID).Msg("update status failed")
		return nil, domain.NewAuthError(domain.CodeUnknownError, "An unexpected error occurred.")
	}

	s.log.Info().Str("user_id", profileID).Str("status", string(status)).Msg("account status changed")
	return profile, nil
}

// PrimaryRole implements ports.RoleResolver.
func (s *AccountService) PrimaryRole(ctx context.Context, userID string) (role string, err error) {
	defer s.recoverAs("primary_role", "An unexpected error occurred.", &err)

	if s.profiles == nil {
		return "", domain.NewAuthError(domain.CodeServerError, "Server configuration error")
	}
	profile, err := s.profiles.FindWithMemberships(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return "", domain.NewAuthError(domain.CodeProfileNotFound, "User profile not found.")
		}
		return "", domain.NewAuthError(domain.CodeUnknownError, "An unexpected error occurred.")
	}
	if !profile.Approved() {
		return "", notApproved(profile.AccountStatus)
	}
	return profile.RoleKey(), nil
}

func (s *AccountService) signOut(ctx context.Context, accessToken string) {
	if err := s.identity.SignOut(ctx, accessToken); err != nil {
		s.log.Warn().Err(err).Msg("sign out of rejected session failed")
	}
}

func (s *AccountService) deleteAccount(ctx context.Context, id string) {
	if err := s.admin.DeleteAccount(ctx, id); err != nil {
		s.log.Error().Err(err).Str("user_id", id).Msg("compensation: delete account failed")
		s.retryCleanup(ports.CleanupTask{Kind: ports.CleanupDeleteAccount, AccountID: id})
	}
}

func (s *AccountService) deleteProfile(ctx context.Context, id string) {
	if err := s.profiles.DeleteProfile(ctx, id); err != nil {
		s.log.Error().Err(err).Str("user_id", id).Msg("compensation: delete profile failed")
		s.retryCleanup(ports.CleanupTask{Kind: ports.CleanupDeleteProfile, AccountID: id})
	}
}

func (s *AccountService) retryCleanup(task ports.CleanupTask) {
	if s.cleanup == nil {
		return
	}
	if !s.cleanup.Enqueue(task) {
		s.log.Error().Str("user_id", task.AccountID).Str("kind", string(task.Kind)).Msg("compensation: retry queue full, task dropped")
	}
}

// recoverAs turns a panic inside an operation into UNKNOWN_ERROR and then
// runs rollback, if any, to undo what the operation had already created.
func (s *AccountService) recoverAs(op, msg string, err *error, rollback ...func()) {
	r := recover()
	if r == nil {
		return
	}
	s.log.Error().Str("op", op).Interface("panic", r).Msg("recovered from panic")
	*err = domain.NewAuthError(domain.CodeUnknownError, msg)
	for _, fn := range rollback {
		s.safely(op, fn)
	}
}

func (s *AccountService) safely(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("op", op).Interface("panic", r).Msg("compensation: rollback panicked")
		}
	}()
	fn()
}

// undo records compensating steps for work an operation has completed.
// Steps run newest first.
type undo []func()

func (u *undo) push(fn func()) { *u = append(*u, fn) }

func (u *undo) run() {
	for i := len(*u) - 1; i >= 0; i-- {
		(*u)[i]()
	}
}

func notApproved(status domain.AccountStatus) *domain.AuthError {
	return &domain.AuthError{
		Code:    domain.CodeAccountNotApproved,
		Message: "Your account is not approved yet. Please wait for administrator approval.",
		Status:  status,
	}
}

func toPayload(p *domain.Profile) ports.UserPayload {
	var orgID *string
	if m := p.PrimaryMembership(); m != nil && m.OrgID != "" {
		id := m.OrgID
		orgID = &id
	}
	return ports.UserPayload{
		ID:              p.ID,
		Email:           p.Email,
		Name:            p.FullName,
		RoleKey:         p.RoleKey(),
		OrgID:           orgID,
		AccountStatus:   p.AccountStatus,
		IsAuthenticated: true,
	}
}

// providerMessage returns the provider's user-facing message when err is a
// provider rejection, and fallback otherwise.
func providerMessage(err error, fallback string) string {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return fallback
}
