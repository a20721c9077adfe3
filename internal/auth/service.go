package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookstack/server/internal/kv"
	"github.com/bookstack/server/internal/model"
	"github.com/bookstack/server/internal/repo"
)

// Mailer delivers a password-reset code to a user. Delivery failures are the
// caller's to log; they must not leak to the requesting client.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, code string) error
}

// Service orchestrates registration, login, logout, session resolution and the
// password-reset flow. It is the only caller of the token service and of the
// session, blacklist and otp namespaces.
type Service struct {
	tokens    *TokenService
	sessions  *sessions
	blacklist *blacklist
	otps      *otpStore
	users     repo.UserRepo
	mailer    Mailer
	now       func() time.Time
}

// NewService creates a credential service over the given collaborators. The
// session, blacklist and otp namespaces all live in the same kv store.
func NewService(tokens *TokenService, store kv.Store, users repo.UserRepo, mailer Mailer) *Service {
	return &Service{
		tokens:    tokens,
		sessions:  &sessions{store: store},
		blacklist: &blacklist{store: store},
		otps:      &otpStore{store: store},
		users:     users,
		mailer:    mailer,
		now:       time.Now,
	}
}

// SetClock replaces the service clock. Test helper.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates a new account. The returned user never carries the password
// digest. A taken username or email surfaces as ErrAlreadyRegistered.
func (s *Service) Register(ctx context.Context, name, username, email, password string) (model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, err
	}

	user, err := s.users.Insert(ctx, model.User{
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return model.User{}, ErrAlreadyRegistered
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// Login verifies the credentials and returns a fresh token with a matching
// session. The identifier may be an email or a username; email wins when both
// match. All credential failures collapse into ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (string, error) {
	user, err := s.users.FindByEmail(ctx, identifier)
	if errors.Is(err, repo.ErrNotFound) {
		user, err = s.users.FindByUsername(ctx, identifier)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}
	if err := s.sessions.Create(ctx, token, user.ID); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return token, nil
}

// Logout revokes the token. It returns true for a fresh revocation and false
// when the token is already blacklisted or does not verify; false is a signal,
// not an error, and needs no retry.
//
// The sequence is not atomic: a crash after the blacklist write leaves the
// session key alive, which is safe because ResolveSession checks the blacklist
// first.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	revoked, err := s.blacklist.Contains(ctx, token)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if revoked {
		return false, nil
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return false, nil
	}

	// Blacklist for the token's remaining validity only; an already-expired
	// token needs no entry since verification rejects it anyway.
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining > 0 {
		if err := s.blacklist.Add(ctx, token, remaining); err != nil {
			return false, fmt.Errorf("failed to blacklist token: %w", err)
		}
	}

	if err := s.sessions.Delete(ctx, token); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}

// ResolveSession authenticates a bearer token and returns its user. The
// blacklist is consulted before anything else, then the signature, then the
// session record; a valid signature alone is never sufficient because the
// token may have been revoked or its session evicted.
func (s *Service) ResolveSession(ctx context.Context, token string) (model.User, error) {
	revoked, err := s.blacklist.Contains(ctx, token)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if revoked {
		return model.User{}, ErrUnauthenticated
	}

	if _, err := s.tokens.Verify(token); err != nil {
		return model.User{}, ErrUnauthenticated
	}

	// The session value, not the token payload, decides which user this is.
	userID, err := s.sessions.UserID(ctx, token)
	if errors.Is(err, kv.ErrNotFound) {
		return model.User{}, ErrUnauthenticated
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to read session: %w", err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.User{}, ErrUnauthenticated
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the digest after verifying the old password.
// Existing sessions and tokens stay valid across the change.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	if !CheckPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	return s.resetPassword(ctx, userID, newPassword)
}

// RequestPasswordReset issues a reset code for the email and hands it to the
// mailer. An unknown email is a silent no-op so callers cannot probe which
// addresses are registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	code, err := s.otps.Issue(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to issue reset code: %w", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, email, code); err != nil {
		return fmt.Errorf("failed to deliver reset code: %w", err)
	}
	return nil
}

// ConfirmPasswordReset checks the code and, on match, sets the new password
// and consumes the code. Missing, expired and mismatched codes all come back
// as ErrInvalidOTP.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	match, err := s.otps.Match(ctx, email, code)
	if err != nil {
		return fmt.Errorf("failed to check reset code: %w", err)
	}
	if !match {
		return ErrInvalidOTP
	}

	if err := s.resetPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	// Single use: a captured code must not work twice even inside its TTL.
	if err := s.otps.Consume(ctx, email); err != nil {
		return fmt.Errorf("failed to consume reset code: %w", err)
	}
	return nil
}

// resetPassword sets the digest directly, bypassing the old-password check.
// Reached only after OTP confirmation.
func (s *Service) resetPassword(ctx context.Context, userID int64, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
