package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/bookstack/server/internal/kv"
)

const (
	otpPrefix = "otp:"
	otpTTL    = 10 * time.Minute
)

var otpCeiling = big.NewInt(1000000)

// otpStore keeps one-time password-reset codes keyed by email. A code lives for
// ten minutes, is overwritten by any newer request for the same email, and is
// deleted the moment it is successfully matched.
type otpStore struct {
	store kv.Store
}

// Issue generates a fresh 6-digit code for the email, replacing any prior one.
func (o *otpStore) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := o.store.Set(ctx, otpPrefix+email, code, otpTTL); err != nil {
		return "", err
	}
	return code, nil
}

// Match reports whether the supplied code equals the stored one. An absent or
// expired record matches nothing; the caller cannot tell the cases apart.
func (o *otpStore) Match(ctx context.Context, email, code string) (bool, error) {
	stored, err := o.store.Get(ctx, otpPrefix+email)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

// Consume deletes the code so it can never be replayed inside its TTL window.
func (o *otpStore) Consume(ctx context.Context, email string) error {
	return o.store.Delete(ctx, otpPrefix+email)
}

// generateCode returns a uniformly random 6-digit decimal string.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpCeiling)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
