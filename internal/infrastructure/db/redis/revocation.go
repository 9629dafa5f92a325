package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enterprise-hub/account-service/internal/core/ports"
)

// minRevocationTTL keeps entries for tokens that are already at or past
// expiry long enough to cover clock skew between issuer and verifier.
const minRevocationTTL = time.Minute

var _ ports.SessionRevoker = (*RevocationList)(nil)

// RevocationList records signed-out sessions until their tokens expire.
// Key format: revoked:<session key>
type RevocationList struct {
	client *redis.Client
	now    func() time.Time
}

// NewRevocationList creates a RevocationList wrapping the given Redis client.
func NewRevocationList(client *redis.Client) *RevocationList {
	return &RevocationList{client: client, now: time.Now}
}

// Revoke marks key as signed out until the given expiry.
func (l *RevocationList) Revoke(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return errors.New("revoke: empty session key")
	}
	ttl := until.Sub(l.now())
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	if err := l.client.Set(ctx, l.key(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether key was signed out and has not yet expired.
func (l *RevocationList) IsRevoked(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	n, err := l.client.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	return n > 0, nil
}

func (l *RevocationList) key(sessionKey string) string {
	return "revoked:" + sessionKey
}
