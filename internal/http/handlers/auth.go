package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bookstack/server/internal/auth"
	"github.com/bookstack/server/internal/middleware"
	"github.com/bookstack/server/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse is the user object in API responses. Never carries the digest.
type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(user model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Name:      user.Name,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if req.Name == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "name, username, email and password are required")
		return
	}

	user, err := h.authService.Register(r.Context(), req.Name, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyRegistered) {
			respondWithError(w, http.StatusConflict, "username or email already registered")
			return
		}
		logMaskedEmail(req.Email, "Failed to register user: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	respondWithJSON(w, http.StatusCreated, newUserResponse(user))
}

// loginRequest is the request body for POST /auth/login. Identifier may be a
// username or an email address.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// loginResponse is the JSON response for login
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "identifier and password are required")
		return
	}

	token, err := h.authService.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logMaskedEmail(req.Identifier, "Login failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	respondWithJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

// logoutRequest is the request body for POST /auth/logout
type logoutRequest struct {
	Token string `json:"token"`
}

// logoutResponse reports whether this call actually revoked the token.
type logoutResponse struct {
	Revoked bool `json:"revoked"`
}

// HandleLogout handles POST /auth/logout. A replayed or invalid token yields
// revoked=false with 200; the end state is the same either way.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}

	revoked, err := h.authService.Logout(r.Context(), req.Token)
	if err != nil {
		log.Printf("Logout failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	respondWithJSON(w, http.StatusOK, logoutResponse{Revoked: revoked})
}

// requestResetRequest is the request body for POST /auth/password-reset/request
type requestResetRequest struct {
	Email string `json:"email"`
}

// HandleRequestReset handles POST /auth/password-reset/request. The response is
// identical whether or not the email is registered.
func (h *AuthHandler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		// Internal failures are logged but never surfaced: the caller must not
		// learn whether the address exists.
		logMaskedEmail(req.Email, "Failed to request password reset: %v", err)
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "reset_requested"})
}

// confirmResetRequest is the request body for POST /auth/password-reset/confirm
type confirmResetRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// HandleConfirmReset handles POST /auth/password-reset/confirm
func (h *AuthHandler) HandleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "email, otp and new_password are required")
		return
	}

	err := h.authService.ConfirmPasswordReset(r.Context(), req.Email, req.OTP, req.NewPassword)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "password_reset"})
	case errors.Is(err, auth.ErrUserNotFound):
		respondWithError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrInvalidOTP):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired code")
	default:
		logMaskedEmail(req.Email, "Failed to confirm password reset: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to reset password")
	}
}

// changePasswordRequest is the request body for POST /me/password
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleChangePassword handles POST /me/password (protected).
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "old_password and new_password are required")
		return
	}

	err := h.authService.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "password_changed"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUserNotFound):
		respondWithError(w, http.StatusNotFound, "user not found")
	default:
		logMaskedEmail(user.Email, "Failed to change password: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to change password")
	}
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, newUserResponse(*user))
}

// logMaskedEmail logs a message with the email masked
func logMaskedEmail(email, format string, args ...interface{}) {
	log.Printf("Email "+maskEmail(email)+": "+format, args...)
}

// maskEmail masks an address for logging (e.g. al***@example.com)
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "****"
	}
	local := email[:at]
	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}
	return local + email[at:]
}
