package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubIdentity struct {
	accounts map[string]string // email -> password
	ids      map[string]string // email -> account id

	authErr    error
	resetErr   error
	updateErr  error
	signOutErr error

	signOuts     []string
	resetEmail   string
	resetURL     string
	updateCalls  int
	updatedToken string
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{accounts: map[string]string{}, ids: map[string]string{}}
}

func (p *stubIdentity) add(id, email, password string) {
	p.accounts[email] = password
	p.ids[email] = id
}

func (p *stubIdentity) Authenticate(_ context.Context, email, password string) (*domain.Session, error) {
	if p.authErr != nil {
		return nil, p.authErr
	}
	if pw, ok := p.accounts[email]; !ok || pw != password {
		return nil, domain.ErrInvalidCredentials
	}
	return &domain.Session{
		AccessToken: "token-" + p.ids[email],
		TokenType:   "bearer",
		ExpiresIn:   3600,
		Account:     &domain.Account{ID: p.ids[email], Email: email},
	}, nil
}

func (p *stubIdentity) SignOut(_ context.Context, accessToken string) error {
	p.signOuts = append(p.signOuts, accessToken)
	return p.signOutErr
}

func (p *stubIdentity) SendPasswordResetEmail(_ context.Context, email, redirectURL string) error {
	p.resetEmail, p.resetURL = email, redirectURL
	return p.resetErr
}

func (p *stubIdentity) UpdatePassword(_ context.Context, accessToken, _ string) error {
	p.updateCalls++
	p.updatedToken = accessToken
	return p.updateErr
}

type stubAdmin struct {
	created   []string
	deleted   []string
	createErr error
	deleteErr error
	nextID    string
}

func (a *stubAdmin) CreateAccount(_ context.Context, email, _ string, confirmed bool) (*domain.Account, error) {
	if confirmed {
		panic("accounts must be created unconfirmed")
	}
	if a.createErr != nil {
		return nil, a.createErr
	}
	a.created = append(a.created, email)
	id := a.nextID
	if id == "" {
		id = "acct-" + email
	}
	return &domain.Account{ID: id, Email: email}, nil
}

func (a *stubAdmin) DeleteAccount(_ context.Context, id string) error {
	a.deleted = append(a.deleted, id)
	return a.deleteErr
}

type stubProfiles struct {
	profiles    map[string]*domain.Profile
	memberships []domain.Membership
	deleted     []string

	findErr       error
	createErr     error
	membershipErr error
	panicOnFind   bool
	panicOnCreate bool
	panicOnMember bool
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{profiles: map[string]*domain.Profile{}}
}

func (r *stubProfiles) FindWithMemberships(_ context.Context, id string) (*domain.Profile, error) {
	if r.panicOnFind {
		panic("boom")
	}
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	clone := *p
	for _, m := range r.memberships {
		if m.UserID == id {
			clone.Memberships = append(clone.Memberships, m)
		}
	}
	return &clone, nil
}

func (r *stubProfiles) FindByEmail(_ context.Context, email string) (*domain.Profile, error) {
	for _, p := range r.profiles {
		if strings.EqualFold(p.Email, email) {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrProfileNotFound
}

func (r *stubProfiles) CreateProfile(_ context.Context, p *domain.Profile) (*domain.Profile, error) {
	if r.panicOnCreate {
		panic("boom")
	}
	if r.createErr != nil {
		return nil, r.createErr
	}
	clone := *p
	r.profiles[p.ID] = &clone
	return p, nil
}

func (r *stubProfiles) CreateMembership(_ context.Context, m *domain.Membership) error {
	if r.panicOnMember {
		panic("boom")
	}
	if r.membershipErr != nil {
		return r.membershipErr
	}
	r.memberships = append(r.memberships, *m)
	return nil
}

func (r *stubProfiles) DeleteProfile(_ context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	delete(r.profiles, id)
	return nil
}

func (r *stubProfiles) UpdateAccountStatus(_ context.Context, id string, status domain.AccountStatus) (*domain.Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	p.AccountStatus = status
	clone := *p
	return &clone, nil
}

func (r *stubProfiles) Ping(context.Context) error { return nil }

type stubRevoker struct {
	keys map[string]time.Time
}

func (r *stubRevoker) Revoke(_ context.Context, key string, until time.Time) error {
	if r.keys == nil {
		r.keys = map[string]time.Time{}
	}
	r.keys[key] = until
	return nil
}

func (r *stubRevoker) IsRevoked(_ context.Context, key string) (bool, error) {
	_, ok := r.keys[key]
	return ok, nil
}

type fixture struct {
	identity *stubIdentity
	admin    *stubAdmin
	profiles *stubProfiles
	revoker  *stubRevoker
	svc      *AccountService
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		identity: newStubIdentity(),
		admin:    &stubAdmin{},
		profiles: newStubProfiles(),
		revoker:  &stubRevoker{},
	}
	if opts.Revoker == nil {
		opts.Revoker = f.revoker
	}
	f.svc = NewAccountService(f.identity, f.admin, f.profiles, opts, zerolog.Nop())
	return f
}

// seed registers an account, profile and optional membership directly.
func (f *fixture) seed(id, email, password string, status domain.AccountStatus, roles ...string) {
	f.identity.add(id, email, password)
	f.profiles.profiles[id] = &domain.Profile{ID: id, Email: email, FullName: "User " + id, OrgID: "org-1", AccountStatus: status}
	for i, role := range roles {
		f.profiles.memberships = append(f.profiles.memberships, domain.Membership{
			ID: id + "-m", UserID: id, OrgID: "org-1", Role: role, IsPrimary: i == 0,
		})
	}
}

func assertCode(t *testing.T, err error, want domain.ErrorCode) *domain.AuthError {
	t.Helper()
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *domain.AuthError with %s, got %v", want, err)
	}
	if ae.Code != want {
		t.Fatalf("expected code %s, got %s (%s)", want, ae.Code, ae.Message)
	}
	return ae
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin_Success(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved, domain.RoleAdmin)

	res, err := f.svc.Login(context.Background(), "a@x.com", "good")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.User.RoleKey != domain.RoleAdmin {
		t.Fatalf("expected role ADMIN, got %s", res.User.RoleKey)
	}
	if !res.User.IsAuthenticated || res.User.AccountStatus != domain.StatusApproved {
		t.Fatalf("unexpected payload: %+v", res.User)
	}
	if res.User.OrgID == nil || *res.User.OrgID != "org-1" {
		t.Fatalf("expected org id from primary membership, got %v", res.User.OrgID)
	}
	if res.Session == nil || res.Session.AccessToken != "token-u1" {
		t.Fatalf("expected provider session, got %+v", res.Session)
	}
	if len(f.identity.signOuts) != 0 {
		t.Fatalf("successful login must not sign out, got %v", f.identity.signOuts)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved, domain.RoleAdmin)

	_, err := f.svc.Login(context.Background(), "a@x.com", "bad")
	assertCode(t, err, domain.CodeInvalidCredentials)
	if len(f.identity.signOuts) != 0 {
		t.Fatalf("no session exists, sign out must not be called")
	}
}

func TestLogin_ProviderFailureIsInvalidCredentials(t *testing.T) {
	f := newFixture(Options{})
	f.identity.authErr = errors.New("connection refused")

	_, err := f.svc.Login(context.Background(), "a@x.com", "good")
	assertCode(t, err, domain.CodeInvalidCredentials)
}

func TestLogin_NotApprovedSignsOutOnce(t *testing.T) {
	for _, status := range []domain.AccountStatus{"PENDING", domain.StatusPendingApproval, domain.StatusRejected, domain.StatusSuspended, ""} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(Options{})
			f.seed("u1", "a@x.com", "good", status, domain.RoleStudentL1)

			res, err := f.svc.Login(context.Background(), "a@x.com", "good")
			if res != nil {
				t.Fatalf("expected no result, got %+v", res)
			}
			ae := assertCode(t, err, domain.CodeAccountNotApproved)
			if ae.Status != status {
				t.Fatalf("expected status %q carried on error, got %q", status, ae.Status)
			}
			if len(f.identity.signOuts) != 1 || f.identity.signOuts[0] != "token-u1" {
				t.Fatalf("expected exactly one sign out of token-u1, got %v", f.identity.signOuts)
			}
		})
	}
}

func TestLogin_ProfileNotFound(t *testing.T) {
	f := newFixture(Options{})
	f.identity.add("u2", "ghost@x.com", "good")

	_, err := f.svc.Login(context.Background(), "ghost@x.com", "good")
	assertCode(t, err, domain.CodeProfileNotFound)
	if len(f.identity.signOuts) != 1 {
		t.Fatalf("expected sign out, got %v", f.identity.signOuts)
	}
}

func TestLogin_StoreErrorIsUnknown(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved, domain.RoleAdmin)
	f.profiles.findErr = errors.New("db down")

	_, err := f.svc.Login(context.Background(), "a@x.com", "good")
	assertCode(t, err, domain.CodeUnknownError)
	if len(f.identity.signOuts) != 1 {
		t.Fatalf("expected sign out, got %v", f.identity.signOuts)
	}
}

func TestLogin_NoStoreIsServerError(t *testing.T) {
	identity := newStubIdentity()
	identity.add("u1", "a@x.com", "good")
	svc := NewAccountService(identity, nil, nil, Options{}, zerolog.Nop())

	_, err := svc.Login(context.Background(), "a@x.com", "good")
	assertCode(t, err, domain.CodeServerError)
	if len(identity.signOuts) != 1 {
		t.Fatalf("expected sign out, got %v", identity.signOuts)
	}
}

func TestLogin_NoMembershipDefaultsToPendingRole(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved)

	res, err := f.svc.Login(context.Background(), "a@x.com", "good")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.User.RoleKey != domain.RolePendingApproval {
		t.Fatalf("expected %s, got %s", domain.RolePendingApproval, res.User.RoleKey)
	}
	if res.User.OrgID != nil {
		t.Fatalf("expected nil org id, got %v", *res.User.OrgID)
	}
}

func TestLogin_PrimaryMembershipWinsOverOrder(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved)
	f.profiles.memberships = []domain.Membership{
		{UserID: "u1", OrgID: "org-2", Role: domain.RoleStudentL1},
		{UserID: "u1", OrgID: "org-3", Role: domain.RoleAdmin, IsPrimary: true},
	}

	res, err := f.svc.Login(context.Background(), "a@x.com", "good")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.User.RoleKey != domain.RoleAdmin || *res.User.OrgID != "org-3" {
		t.Fatalf("expected primary membership to be selected, got %+v", res.User)
	}
}

func TestLogin_PanicBecomesUnknownError(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved, domain.RoleAdmin)
	f.profiles.panicOnFind = true

	res, err := f.svc.Login(context.Background(), "a@x.com", "good")
	if res != nil {
		t.Fatalf("expected nil result")
	}
	assertCode(t, err, domain.CodeUnknownError)
	if len(f.identity.signOuts) != 1 || f.identity.signOuts[0] != "token-u1" {
		t.Fatalf("expected the opened session to be signed out, got %v", f.identity.signOuts)
	}
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_Success(t *testing.T) {
	f := newFixture(Options{})

	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "new@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Role != domain.RoleStudentL1 || user.AccountStatus != domain.StatusApproved {
		t.Fatalf("unexpected user: %+v", user)
	}
	if len(f.profiles.memberships) != 1 {
		t.Fatalf("expected one membership, got %d", len(f.profiles.memberships))
	}
	m := f.profiles.memberships[0]
	if !m.IsPrimary || m.Role != domain.RoleStudentL1 || m.OrgID != "org-1" || m.UserID != user.ID {
		t.Fatalf("unexpected membership: %+v", m)
	}
	if m.ID == "" {
		t.Fatalf("membership id must be generated")
	}
	if len(f.identity.signOuts) != 0 {
		t.Fatalf("registration must not touch sessions")
	}
}

func TestRegister_AdminAllowList(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"boss@x.com", domain.RoleAdmin},
		{"BOSS@X.COM", domain.RoleAdmin},
		{"  Boss@x.com ", domain.RoleAdmin},
		{"other@x.com", domain.RoleStudentL1},
	}
	for _, tc := range tests {
		t.Run(tc.email, func(t *testing.T) {
			f := newFixture(Options{AdminEmails: []string{"Boss@X.com"}})
			user, err := f.svc.Register(context.Background(), ports.RegisterInput{
				Email: tc.email, Password: "pw123456", Name: "Jane", OrgID: "org-1",
			})
			if err != nil {
				t.Fatalf("Register returned error: %v", err)
			}
			if user.Role != tc.want || f.profiles.memberships[0].Role != tc.want {
				t.Fatalf("expected role %s, got %s", tc.want, user.Role)
			}
		})
	}
}

func TestRegister_MissingFields(t *testing.T) {
	inputs := []ports.RegisterInput{
		{Password: "pw123456", Name: "Jane", OrgID: "org-1"},
		{Email: "a@x.com", Name: "Jane", OrgID: "org-1"},
		{Email: "a@x.com", Password: "pw123456", OrgID: "org-1"},
		{Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "   "},
	}
	for _, in := range inputs {
		f := newFixture(Options{})
		_, err := f.svc.Register(context.Background(), in)
		assertCode(t, err, domain.CodeMissingFields)
		if len(f.admin.created) != 0 {
			t.Fatalf("no account may be created for %+v", in)
		}
	}
}

func TestRegister_KeepsEmailAsTyped(t *testing.T) {
	f := newFixture(Options{})

	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "  Jane.Doe@Example.com ", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Email != "Jane.Doe@Example.com" || f.admin.created[0] != "Jane.Doe@Example.com" {
		t.Fatalf("expected trimmed original email, got %q / %v", user.Email, f.admin.created)
	}
	if p := f.profiles.profiles[user.ID]; p == nil || p.Email != "Jane.Doe@Example.com" {
		t.Fatalf("unexpected stored profile: %+v", p)
	}
}

func TestRegister_UserExists(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "taken@x.com", "pw", domain.StatusApproved, domain.RoleStudentL1)

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "Taken@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	assertCode(t, err, domain.CodeUserExists)
	if len(f.admin.created) != 0 {
		t.Fatalf("expected no account creation, got %v", f.admin.created)
	}
}

func TestRegister_UniqueConflictRollsBackAccount(t *testing.T) {
	f := newFixture(Options{})
	f.admin.nextID = "acct-9"
	f.profiles.createErr = domain.ErrUserExists

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "race@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	assertCode(t, err, domain.CodeUserExists)
	if len(f.admin.deleted) != 1 || f.admin.deleted[0] != "acct-9" {
		t.Fatalf("expected account acct-9 to be deleted, got %v", f.admin.deleted)
	}
}

func TestRegister_AuthCreateFailed(t *testing.T) {
	f := newFixture(Options{})
	f.admin.createErr = &domain.ProviderError{StatusCode: 422, Message: "Password should be at least 6 characters"}

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "pw", Name: "Jane", OrgID: "org-1",
	})
	ae := assertCode(t, err, domain.CodeAuthCreateFailed)
	if ae.Message != "Password should be at least 6 characters" {
		t.Fatalf("expected provider message, got %q", ae.Message)
	}
	if len(f.profiles.profiles) != 0 {
		t.Fatalf("no profile may be created")
	}
}

func TestRegister_AuthCreateFailedGenericMessage(t *testing.T) {
	f := newFixture(Options{})
	f.admin.createErr = errors.New("dial tcp: timeout")

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	ae := assertCode(t, err, domain.CodeAuthCreateFailed)
	if ae.Message != "Failed to create authentication user." {
		t.Fatalf("transport details must not leak, got %q", ae.Message)
	}
}

func TestRegister_ProfileFailureDeletesAccount(t *testing.T) {
	f := newFixture(Options{})
	f.admin.nextID = "acct-7"
	f.profiles.createErr = errors.New("insert failed")

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	assertCode(t, err, domain.CodeProfileCreateFailed)
	if len(f.admin.deleted) != 1 || f.admin.deleted[0] != "acct-7" {
		t.Fatalf("expected compensation delete of acct-7, got %v", f.admin.deleted)
	}
}

func TestRegister_MembershipFailureRollsBackBoth(t *testing.T) {
	f := newFixture(Options{})
	f.admin.nextID = "acct-5"
	f.profiles.membershipErr = errors.New("fk violation")

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	assertCode(t, err, domain.CodeMembershipCreateFailed)
	if len(f.profiles.deleted) != 1 || f.profiles.deleted[0] != "acct-5" {
		t.Fatalf("expected profile rollback, got %v", f.profiles.deleted)
	}
	if len(f.admin.deleted) != 1 || f.admin.deleted[0] != "acct-5" {
		t.Fatalf("expected account rollback, got %v", f.admin.deleted)
	}
}

func TestRegister_PanicRollsBack(t *testing.T) {
	t.Run("after account", func(t *testing.T) {
		f := newFixture(Options{})
		f.admin.nextID = "acct-3"
		f.profiles.panicOnCreate = true

		_, err := f.svc.Register(context.Background(), ports.RegisterInput{
			Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
		})
		assertCode(t, err, domain.CodeUnknownError)
		if len(f.admin.deleted) != 1 || f.admin.deleted[0] != "acct-3" {
			t.Fatalf("expected account rollback, got %v", f.admin.deleted)
		}
		if len(f.profiles.deleted) != 0 {
			t.Fatalf("no profile was created, got %v", f.profiles.deleted)
		}
	})

	t.Run("after profile", func(t *testing.T) {
		f := newFixture(Options{})
		f.admin.nextID = "acct-4"
		f.profiles.panicOnMember = true

		_, err := f.svc.Register(context.Background(), ports.RegisterInput{
			Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
		})
		assertCode(t, err, domain.CodeUnknownError)
		if len(f.profiles.deleted) != 1 || f.profiles.deleted[0] != "acct-4" {
			t.Fatalf("expected profile rollback, got %v", f.profiles.deleted)
		}
		if len(f.admin.deleted) != 1 || f.admin.deleted[0] != "acct-4" {
			t.Fatalf("expected account rollback, got %v", f.admin.deleted)
		}
	})

	t.Run("failed rollback is queued", func(t *testing.T) {
		queue := &stubQueue{}
		f := newFixture(Options{Cleanup: queue})
		f.admin.nextID = "acct-6"
		f.admin.deleteErr = errors.New("provider down")
		f.profiles.panicOnCreate = true

		_, err := f.svc.Register(context.Background(), ports.RegisterInput{
			Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
		})
		assertCode(t, err, domain.CodeUnknownError)
		if len(queue.tasks) != 1 || queue.tasks[0].Kind != ports.CleanupDeleteAccount {
			t.Fatalf("expected the account delete to be queued, got %+v", queue.tasks)
		}
	})
}

func TestRegister_InitialStatusPolicy(t *testing.T) {
	f := newFixture(Options{InitialStatus: domain.StatusPendingApproval})

	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.AccountStatus != domain.StatusPendingApproval {
		t.Fatalf("expected pending status, got %s", user.AccountStatus)
	}

	f.identity.add(user.ID, "a@x.com", "pw123456")
	_, err = f.svc.Login(context.Background(), "a@x.com", "pw123456")
	assertCode(t, err, domain.CodeAccountNotApproved)

	if _, err := f.svc.SetAccountStatus(context.Background(), user.ID, domain.StatusApproved); err != nil {
		t.Fatalf("SetAccountStatus returned error: %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "a@x.com", "pw123456"); err != nil {
		t.Fatalf("login after approval failed: %v", err)
	}
}

func TestRegister_InitialStatusIsNormalised(t *testing.T) {
	cases := map[domain.AccountStatus]domain.AccountStatus{
		"pending_approval": domain.StatusPendingApproval,
		" approved ":       domain.StatusApproved,
		"approve":          domain.StatusApproved,
		"":                 domain.StatusApproved,
	}
	for in, want := range cases {
		f := newFixture(Options{InitialStatus: in})
		user, err := f.svc.Register(context.Background(), ports.RegisterInput{
			Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
		})
		if err != nil {
			t.Fatalf("%q: Register returned error: %v", in, err)
		}
		if user.AccountStatus != want {
			t.Fatalf("%q: expected %s, got %s", in, want, user.AccountStatus)
		}
	}

	// A lower-cased policy value must not lock new accounts out of login.
	f := newFixture(Options{InitialStatus: "approved"})
	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "b@x.com", Password: "pw123456", Name: "Bo", OrgID: "org-1",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	f.identity.add(user.ID, "b@x.com", "pw123456")
	if _, err := f.svc.Login(context.Background(), "b@x.com", "pw123456"); err != nil {
		t.Fatalf("login after registration failed: %v", err)
	}
}

func TestRegister_NoAdminClientIsServerError(t *testing.T) {
	svc := NewAccountService(newStubIdentity(), nil, newStubProfiles(), Options{}, zerolog.Nop())
	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "pw123456", Name: "Jane", OrgID: "org-1",
	})
	assertCode(t, err, domain.CodeServerError)
}

// ---------------------------------------------------------------------------
// Password reset
// ---------------------------------------------------------------------------

func TestRequestPasswordReset(t *testing.T) {
	f := newFixture(Options{SiteURL: "https://app.example.com/"})

	if err := f.svc.RequestPasswordReset(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}
	if f.identity.resetEmail != "a@x.com" {
		t.Fatalf("unexpected email %q", f.identity.resetEmail)
	}
	if f.identity.resetURL != "https://app.example.com/auth/reset-password" {
		t.Fatalf("unexpected redirect %q", f.identity.resetURL)
	}
}

func TestRequestPasswordReset_Errors(t *testing.T) {
	f := newFixture(Options{})
	assertCode(t, f.svc.RequestPasswordReset(context.Background(), ""), domain.CodeMissingEmail)

	f.identity.resetErr = &domain.ProviderError{StatusCode: 429, Message: "For security purposes, you can only request this once every 60 seconds"}
	ae := assertCode(t, f.svc.RequestPasswordReset(context.Background(), "a@x.com"), domain.CodeResetRequestFailed)
	if ae.Message != f.identity.resetErr.(*domain.ProviderError).Message {
		t.Fatalf("expected provider message, got %q", ae.Message)
	}
}

func TestUpdatePasswordWithToken_Validation(t *testing.T) {
	session := domain.SessionContext{UserID: "u1", AccessToken: "recovery"}
	tests := []struct {
		name             string
		newPw, confirmPw string
		want             domain.ErrorCode
	}{
		{"missing new", "", "abcdef", domain.CodeMissingPassword},
		{"missing confirm", "abcdef", "", domain.CodeMissingPassword},
		{"mismatch", "abcdef", "abcdeg", domain.CodePasswordMismatch},
		{"mismatch short", "abc", "abd", domain.CodePasswordMismatch},
		{"too short", "abcde", "abcde", domain.CodePasswordTooShort},
		{"too short multibyte", "ééééé", "ééééé", domain.CodePasswordTooShort},
		{"too short surrogate pairs", "😀😀", "😀😀", domain.CodePasswordTooShort},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(Options{})
			err := f.svc.UpdatePasswordWithToken(context.Background(), session, tc.newPw, tc.confirmPw)
			assertCode(t, err, tc.want)
			if f.identity.updateCalls != 0 {
				t.Fatalf("provider must not be called on validation failure")
			}
		})
	}
}

func TestValidateNewPassword_CountsUTF16Units(t *testing.T) {
	// Three astral-plane characters are six UTF-16 units.
	if err := ValidateNewPassword("😀😀😀", "😀😀😀"); err != nil {
		t.Fatalf("expected six UTF-16 units to pass, got %v", err)
	}
	err := ValidateNewPassword("😀😀a", "😀😀a")
	assertCode(t, err, domain.CodePasswordTooShort)
	if err := ValidateNewPassword("éééééé", "éééééé"); err != nil {
		t.Fatalf("expected six BMP characters to pass, got %v", err)
	}

	f := newFixture(Options{})
	session := domain.SessionContext{UserID: "u1", AccessToken: "recovery"}
	if err := f.svc.UpdatePasswordWithToken(context.Background(), session, "😀😀😀", "😀😀😀"); err != nil {
		t.Fatalf("UpdatePasswordWithToken returned error: %v", err)
	}
	if f.identity.updateCalls != 1 {
		t.Fatalf("expected provider to be called once, got %d", f.identity.updateCalls)
	}
}

func TestUpdatePasswordWithToken_RequiresSession(t *testing.T) {
	f := newFixture(Options{})
	err := f.svc.UpdatePasswordWithToken(context.Background(), domain.SessionContext{}, "abcdef", "abcdef")
	assertCode(t, err, domain.CodeSessionRequired)
	if f.identity.updateCalls != 0 {
		t.Fatalf("provider must not be called without a session")
	}
}

func TestUpdatePasswordWithToken_Provider(t *testing.T) {
	f := newFixture(Options{})
	session := domain.SessionContext{UserID: "u1", AccessToken: "recovery"}

	if err := f.svc.UpdatePasswordWithToken(context.Background(), session, "abcdef", "abcdef"); err != nil {
		t.Fatalf("UpdatePasswordWithToken returned error: %v", err)
	}
	if f.identity.updatedToken != "recovery" {
		t.Fatalf("expected recovery token to be used, got %q", f.identity.updatedToken)
	}

	f.identity.updateErr = &domain.ProviderError{StatusCode: 422, Message: "New password should be different from the old password."}
	ae := assertCode(t, f.svc.UpdatePasswordWithToken(context.Background(), session, "abcdef", "abcdef"), domain.CodeUpdateFailed)
	if ae.Message != "New password should be different from the old password." {
		t.Fatalf("expected provider message, got %q", ae.Message)
	}
}

// ---------------------------------------------------------------------------
// Logout, CurrentUser, status, roles
// ---------------------------------------------------------------------------

func TestLogout_RevokesSession(t *testing.T) {
	f := newFixture(Options{})
	exp := time.Now().Add(time.Hour)
	session := domain.SessionContext{UserID: "u1", SessionID: "sess-1", AccessToken: "tok", ExpiresAt: exp}

	if err := f.svc.Logout(context.Background(), session); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if len(f.identity.signOuts) != 1 || f.identity.signOuts[0] != "tok" {
		t.Fatalf("expected sign out of tok, got %v", f.identity.signOuts)
	}
	if until, ok := f.revoker.keys["sess-1"]; !ok || !until.Equal(exp) {
		t.Fatalf("expected sess-1 revoked until %v, got %v", exp, f.revoker.keys)
	}
}

func TestLogout_ProviderFailure(t *testing.T) {
	f := newFixture(Options{})
	f.identity.signOutErr = errors.New("502")

	err := f.svc.Logout(context.Background(), domain.SessionContext{UserID: "u1", SessionID: "s", AccessToken: "tok"})
	assertCode(t, err, domain.CodeLogoutFailed)
	if len(f.revoker.keys) != 0 {
		t.Fatalf("failed sign out must not be recorded")
	}
}

func TestCurrentUser(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved, domain.RoleStudentL1)
	f.seed("u2", "b@x.com", "good", "PENDING", domain.RoleStudentL1)

	user, err := f.svc.CurrentUser(context.Background(), domain.SessionContext{UserID: "u1", AccessToken: "t"})
	if err != nil {
		t.Fatalf("CurrentUser returned error: %v", err)
	}
	if user.ID != "u1" || user.RoleKey != domain.RoleStudentL1 {
		t.Fatalf("unexpected payload: %+v", user)
	}

	_, err = f.svc.CurrentUser(context.Background(), domain.SessionContext{UserID: "u2", AccessToken: "t"})
	assertCode(t, err, domain.CodeAccountNotApproved)

	_, err = f.svc.CurrentUser(context.Background(), domain.SessionContext{})
	assertCode(t, err, domain.CodeUnauthorized)

	if len(f.identity.signOuts) != 0 {
		t.Fatalf("CurrentUser must not sign out the caller")
	}
}

func TestSetAccountStatus_Errors(t *testing.T) {
	f := newFixture(Options{})
	_, err := f.svc.SetAccountStatus(context.Background(), "u1", "WHATEVER")
	assertCode(t, err, domain.CodeInvalidStatus)

	_, err = f.svc.SetAccountStatus(context.Background(), "missing", domain.StatusApproved)
	assertCode(t, err, domain.CodeProfileNotFound)
}

func TestPrimaryRole(t *testing.T) {
	f := newFixture(Options{})
	f.seed("u1", "a@x.com", "good", domain.StatusApproved, domain.RoleAdmin)

	role, err := f.svc.PrimaryRole(context.Background(), "u1")
	if err != nil || role != domain.RoleAdmin {
		t.Fatalf("expected ADMIN, got %q (%v)", role, err)
	}

	_, err = f.svc.PrimaryRole(context.Background(), "nobody")
	assertCode(t, err, domain.CodeProfileNotFound)
}
