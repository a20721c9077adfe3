package auth

import "errors"

// Sentinel errors for the expected failure modes. Handlers match these with
// errors.Is and map them to status codes; anything else is an infrastructure
// failure and surfaces as a 500.
//
// ErrInvalidCredentials and ErrInvalidOTP are deliberately uniform: login must
// not reveal whether the identifier or the password was wrong, and reset
// confirmation must not reveal whether the code was missing, expired, or
// mismatched.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("invalid or expired token")
	ErrAlreadyRegistered  = errors.New("username or email already registered")
	ErrInvalidOTP         = errors.New("invalid or expired code")
	ErrUserNotFound       = errors.New("user not found")
)
