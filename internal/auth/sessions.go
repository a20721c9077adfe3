package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/bookstack/server/internal/kv"
	"github.com/google/uuid"
)

// Key prefixes partition the shared kv store. They never leave this package.
const (
	sessionPrefix   = "session:"
	blacklistPrefix = "blacklist:"
)

// sessions tracks live tokens. A session key asserts "this token is currently
// accepted"; its value is the owning user id, which is the source of truth for
// request resolution (not the token payload).
type sessions struct {
	store kv.Store
}

// Create registers the token for the user with the token's own lifetime.
func (s *sessions) Create(ctx context.Context, token string, userID int64) error {
	return s.store.Set(ctx, sessionPrefix+token, strconv.FormatInt(userID, 10), tokenTTL)
}

// UserID returns the user id the token was issued to, or kv.ErrNotFound when
// the session is absent, expired, or was deleted by logout.
func (s *sessions) UserID(ctx context.Context, token string) (int64, error) {
	value, err := s.store.Get(ctx, sessionPrefix+token)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// Delete removes the session for the token.
func (s *sessions) Delete(ctx context.Context, token string) error {
	return s.store.Delete(ctx, sessionPrefix+token)
}

// blacklist records revoked tokens. Once a token appears here it must never
// authenticate again, whatever the session namespace says. Entries expire
// together with the token itself, so the namespace cannot grow unbounded.
type blacklist struct {
	store kv.Store
}

// Add marks the token revoked for the remainder of its validity. The value is
// an opaque revocation marker; only key presence matters.
func (b *blacklist) Add(ctx context.Context, token string, remaining time.Duration) error {
	return b.store.Set(ctx, blacklistPrefix+token, uuid.NewString(), remaining)
}

// Contains reports whether the token has been revoked.
func (b *blacklist) Contains(ctx context.Context, token string) (bool, error) {
	return b.store.Exists(ctx, blacklistPrefix+token)
}
