// Package gotrue adapts the Supabase Auth (GoTrue) SDK to the identity
// provider ports. Client covers the calls made with the public anon key or a
// user's access token; AdminClient covers the service-role calls.
package gotrue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	authapi "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const (
	authPrefix     = "/auth/v1"
	defaultTimeout = 10 * time.Second
)

var (
	_ ports.IdentityProvider = (*Client)(nil)
	_ ports.IdentityAdmin    = (*AdminClient)(nil)
)

// ErrMissingServiceKey is returned by NewAdminClient without a service key.
var ErrMissingServiceKey = errors.New("gotrue: service role key is not configured")

// Config captures the project URL and keys.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// backend holds what every call needs to build a request-scoped SDK client.
type backend struct {
	baseURL string
	http    *http.Client
}

func newBackend(cfg Config) (*backend, error) {
	u := strings.TrimRight(cfg.URL, "/")
	if u == "" {
		return nil, errors.New("gotrue: URL is required")
	}
	if _, err := url.Parse(u); err != nil {
		return nil, fmt.Errorf("gotrue: parse url: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &backend{baseURL: u + authPrefix, http: hc}, nil
}

// api returns an SDK client whose requests carry ctx. The SDK methods take no
// context, so cancellation rides on the transport.
func (b *backend) api(ctx context.Context, apiKey string) authapi.Client {
	base := b.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := http.Client{
		Transport: contextTransport{ctx: ctx, base: base},
		Timeout:   b.http.Timeout,
		Jar:       b.http.Jar,
	}
	return authapi.New("", apiKey).WithCustomGoTrueURL(b.baseURL).WithClient(hc)
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(r.WithContext(t.ctx))
}

// Client is the non-privileged GoTrue client.
type Client struct {
	b       *backend
	anonKey string
}

// NewClient builds a Client for the project at cfg.URL.
func NewClient(cfg Config) (*Client, error) {
	b, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("gotrue: anon key is required")
	}
	return &Client{b: b, anonKey: cfg.AnonKey}, nil
}

// Authenticate performs the password grant.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*domain.Session, error) {
	out, err := c.b.api(ctx, c.anonKey).SignInWithEmailPassword(email, password)
	if errors.Is(err, types.ErrInvalidTokenRequest) {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrInvalidCredentials)
	}
	if err != nil {
		err = providerError(err)
		var pe *domain.ProviderError
		if errors.As(err, &pe) && (pe.StatusCode == http.StatusBadRequest || pe.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, pe.Message)
		}
		return nil, err
	}
	if out.AccessToken == "" || out.User.ID == uuid.Nil {
		return nil, errors.New("gotrue: token response without session")
	}

	expiresAt := time.Unix(out.ExpiresAt, 0).UTC()
	if out.ExpiresAt == 0 {
		expiresAt = time.Now().UTC().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return &domain.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		TokenType:    out.TokenType,
		ExpiresIn:    out.ExpiresIn,
		ExpiresAt:    expiresAt,
		Account:      &domain.Account{ID: out.User.ID.String(), Email: out.User.Email},
	}, nil
}

// SignOut invalidates the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return providerError(c.b.api(ctx, c.anonKey).WithToken(accessToken).Logout())
}

// UpdatePassword changes the password of the user owning accessToken.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	_, err := c.b.api(ctx, c.anonKey).WithToken(accessToken).UpdateUser(types.UpdateUserRequest{
		Password: &newPassword,
	})
	return providerError(err)
}

// AdminClient performs service-role operations. It must never be exposed to
// end users.
type AdminClient struct {
	b          *backend
	serviceKey string
}

// NewAdminClient returns ErrMissingServiceKey when no service key is set.
func NewAdminClient(cfg Config) (*AdminClient, error) {
	if cfg.ServiceRoleKey == "" {
		return nil, ErrMissingServiceKey
	}
	b, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return &AdminClient{b: b, serviceKey: cfg.ServiceRoleKey}, nil
}

func (a *AdminClient) api(ctx context.Context) authapi.Client {
	return a.b.api(ctx, a.serviceKey).WithToken(a.serviceKey)
}

// CreateAccount creates a user directly, bypassing signup confirmation mail.
func (a *AdminClient) CreateAccount(ctx context.Context, email, password string, confirmed bool) (*domain.Account, error) {
	out, err := a.api(ctx).AdminCreateUser(types.AdminCreateUserRequest{
		Email:        email,
		Password:     &password,
		EmailConfirm: confirmed,
	})
	if err != nil {
		return nil, providerError(err)
	}
	if out.ID == uuid.Nil {
		return nil, errors.New("gotrue: create user response without id")
	}
	return &domain.Account{ID: out.ID.String(), Email: out.Email}, nil
}

// DeleteAccount removes the user with the given id.
func (a *AdminClient) DeleteAccount(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("gotrue: invalid user id %q: %w", id, err)
	}
	return providerError(a.api(ctx).AdminDeleteUser(types.AdminDeleteUserRequest{UserID: uid}))
}
