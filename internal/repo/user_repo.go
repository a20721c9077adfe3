package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bookstack/server/internal/model"
)

// UserRepo defines the interface for user record operations. Uniqueness of
// username and email is enforced by the database; violations surface as
// ErrDuplicate.
type UserRepo interface {
	Insert(ctx context.Context, user model.User) (model.User, error)
	FindByID(ctx context.Context, id int64) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// Insert stores a new user and returns it with id and created_at populated.
func (r *userRepo) Insert(ctx context.Context, user model.User) (model.User, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, user.Name, user.Username, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by id.
func (r *userRepo) FindByID(ctx context.Context, id int64) (model.User, error) {
	return r.findBy(ctx, "id", id)
}

// FindByEmail retrieves a user by email.
func (r *userRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findBy(ctx, "email", email)
}

// FindByUsername retrieves a user by username.
func (r *userRepo) FindByUsername(ctx context.Context, username string) (model.User, error) {
	return r.findBy(ctx, "username", username)
}

func (r *userRepo) findBy(ctx context.Context, column string, value any) (model.User, error) {
	query := fmt.Sprintf(`
		SELECT id, name, username, email, password_hash, created_at
		FROM users
		WHERE %s = $1
	`, column)

	var user model.User
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to query user by %s: %w", column, err)
	}
	return user, nil
}

// UpdatePasswordHash replaces the stored digest for the user.
func (r *userRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE id = $1
	`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
