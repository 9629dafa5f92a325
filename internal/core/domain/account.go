package domain

import "time"

// Account is the identity-provider-owned credential record.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is issued by the identity provider after a successful password grant.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	Account      *Account  `json:"-"`
}

// SessionContext describes a caller that already holds a verified provider
// session, either a regular login or a recovery session from a reset link.
type SessionContext struct {
	UserID      string
	Email       string
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}

// Authenticated reports whether the context carries a usable access token.
func (s SessionContext) Authenticated() bool {
	return s.AccessToken != "" && s.UserID != ""
}

// RevocationKey identifies the session in the revocation list. Provider
// tokens carry a session_id claim; older tokens fall back to user + expiry.
func (s SessionContext) RevocationKey() string {
	if s.SessionID != "" {
		return s.SessionID
	}
	if s.UserID == "" {
		return ""
	}
	return s.UserID + ":" + s.ExpiresAt.UTC().Format(time.RFC3339)
}
