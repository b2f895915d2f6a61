// Package session manages server-side admin sessions.
// The opaque admin token handed to the console is only a key into a Store;
// the principal is always resolved server-side on each request. Store is an
// adapter interface so persistence can be swapped (Firestore in deployment,
// in-memory in tests and single-node setups).
package session

import (
	"context"
	"errors"
	"time"

	"civicsaathi/authz"
)

// ErrNotFound is returned when no live session exists for a token.
var ErrNotFound = errors.New("session not found")

// Session is one logged-in admin console session.
type Session struct {
	Token    string          `json:"token"`
	Admin    authz.Principal `json:"admin"`
	IssuedAt time.Time       `json:"issued_at"`
	LastSeen time.Time       `json:"last_seen"`
}

// Store persists admin sessions keyed by token.
type Store interface {
	// Save creates or replaces a session.
	Save(ctx context.Context, s *Session) error
	// Get returns the session for a token, or ErrNotFound. Implementations
	// silently discard records they can no longer parse.
	Get(ctx context.Context, token string) (*Session, error)
	// Touch updates the session's last-seen time. Best effort.
	Touch(ctx context.Context, token string, at time.Time) error
	// Delete removes a session (logout). Deleting a missing token is not
	// an error.
	Delete(ctx context.Context, token string) error
}

// Expired reports whether the session has outlived the given TTL measured
// from its last activity.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	ref := s.LastSeen
	if ref.IsZero() {
		ref = s.IssuedAt
	}
	return now.Sub(ref) > ttl
}
