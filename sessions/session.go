package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-auth/users"
)

// KeyPrefix namespaces session records in the key-value store.
const KeyPrefix = "session:"

// DefaultTTL is the session lifetime when none is configured (3 days).
const DefaultTTL = 259200 * time.Second

// Key returns the store key for a session identifier.
func Key(sessionID string) string {
	return KeyPrefix + sessionID
}

// Record is the server-side session state. Email and Role are a snapshot
// taken at login. A record exists in the store iff the session is live.
type Record struct {
	UserID           string      `json:"userId"`
	Email            string      `json:"email"`
	Role             users.Roles `json:"role"`
	Requires2FA      bool        `json:"requires2FA"`
	Verified2FA      bool        `json:"verified2FA"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
}

// Store is a thin contract over a key-value store with TTL support.
// Get returns internal/errors.ErrNotFound when no live record exists.
// Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Record, error)
	Set(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}
