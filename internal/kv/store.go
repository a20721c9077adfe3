package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or its TTL has elapsed.
// The two cases are indistinguishable on purpose.
var ErrNotFound = errors.New("kv: key not found")

// Store is a key-value store with per-key expiry. Set with a TTL <= 0 is invalid;
// callers decide whether to skip the write instead. Single-key operations are atomic.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
