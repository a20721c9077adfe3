package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres backs Store with the kv_entries table. Expired rows are treated as
// absent on every read and reaped opportunistically on writes, so readers never
// see a stale value even if the reaper lags.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Store over the given database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Set upserts the entry. The upsert is a pure overwrite: concurrent writers for
// the same key converge on the last write, which is what the session and
// blacklist protocols rely on.
func (p *Postgres) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("kv set %q: non-positive ttl %v", key, ttl)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, now() + $3 * interval '1 second')
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	p.reap(ctx)
	return nil
}

// Get returns the value for key, or ErrNotFound when absent or expired.
func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries
		WHERE key = $1 AND expires_at > now()
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present and unexpired.
func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM kv_entries WHERE key = $1 AND expires_at > now()
		)
	`, key).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("kv exists %q: %w", key, err)
	}
	return found, nil
}

// reap deletes expired rows. Failures are ignored: correctness only depends on
// the expires_at predicate in the read paths.
func (p *Postgres) reap(ctx context.Context) {
	_, _ = p.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at <= now()`)
}
