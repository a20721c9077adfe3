package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstack/server/internal/kv"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		require.Regexp(t, `^\d{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes should not be constant")
}

func TestOTPStore_MatchAbsent(t *testing.T) {
	store := &otpStore{store: kv.NewMemory()}

	match, err := store.Match(context.Background(), "alice@x.com", "123456")
	require.NoError(t, err)
	assert.False(t, match, "a never-issued code must not match")
}

func TestOTPStore_IssueMatchConsume(t *testing.T) {
	ctx := context.Background()
	store := &otpStore{store: kv.NewMemory()}

	code, err := store.Issue(ctx, "alice@x.com")
	require.NoError(t, err)

	match, err := store.Match(ctx, "alice@x.com", code)
	require.NoError(t, err)
	assert.True(t, match)

	// The code is bound to the email it was issued for.
	match, err = store.Match(ctx, "bob@x.com", code)
	require.NoError(t, err)
	assert.False(t, match)

	require.NoError(t, store.Consume(ctx, "alice@x.com"))
	match, err = store.Match(ctx, "alice@x.com", code)
	require.NoError(t, err)
	assert.False(t, match)
}
