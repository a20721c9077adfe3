package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstack/server/internal/auth"
	httphandler "github.com/bookstack/server/internal/http"
	"github.com/bookstack/server/internal/http/handlers"
	"github.com/bookstack/server/internal/kv"
	"github.com/bookstack/server/internal/model"
	"github.com/bookstack/server/internal/repo"
)

type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]model.User
}

func (f *memUserRepo) Insert(_ context.Context, user model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return model.User{}, repo.ErrDuplicate
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *memUserRepo) FindByID(_ context.Context, id int64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return model.User{}, repo.ErrNotFound
}

func (f *memUserRepo) FindByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *memUserRepo) FindByUsername(_ context.Context, username string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *memUserRepo) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

type recordMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *recordMailer) SendPasswordReset(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *recordMailer) {
	t.Helper()
	mailer := &recordMailer{codes: make(map[string]string)}
	authService := auth.NewService(
		auth.NewTokenService("test-secret"),
		kv.NewMemory(),
		&memUserRepo{users: make(map[int64]model.User)},
		mailer,
	)
	router := httphandler.NewRouter(
		handlers.NewAuthHandler(authService),
		handlers.NewCatalogHandler(nil, nil, nil),
		authService,
	)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, mailer
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out), "body: %s", data)
}

func TestAuthFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	client := ts.Client()

	// register
	resp := postJSON(t, client, ts.URL+"/auth/register", map[string]string{
		"name": "Alice", "username": "alice", "email": "alice@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var registered struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	decodeBody(t, resp, &registered)
	assert.Equal(t, "alice", registered.Username)

	// duplicate register
	resp = postJSON(t, client, ts.URL+"/auth/register", map[string]string{
		"name": "Alice2", "username": "alice", "email": "alice2@x.com", "password": "secret123",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// login
	resp = postJSON(t, client, ts.URL+"/auth/login", map[string]string{
		"identifier": "alice@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeBody(t, resp, &login)
	require.NotEmpty(t, login.AccessToken)
	assert.Equal(t, "bearer", login.TokenType)

	// me
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	meResp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, meResp.StatusCode)
	var me struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	decodeBody(t, meResp, &me)
	assert.Equal(t, registered.ID, me.ID)
	assert.Equal(t, "alice@x.com", me.Email)

	// logout, twice
	resp = postJSON(t, client, ts.URL+"/auth/logout", map[string]string{"token": login.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logout struct {
		Revoked bool `json:"revoked"`
	}
	decodeBody(t, resp, &logout)
	assert.True(t, logout.Revoked)

	resp = postJSON(t, client, ts.URL+"/auth/logout", map[string]string{"token": login.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &logout)
	assert.False(t, logout.Revoked, "replayed logout must report revoked=false")

	// the session is gone
	req, err = http.NewRequest(http.MethodGet, ts.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	meResp, err = client.Do(req)
	require.NoError(t, err)
	meResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, meResp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts, _ := newTestServer(t)
	client := ts.Client()

	resp := postJSON(t, client, ts.URL+"/auth/register", map[string]string{
		"name": "Alice", "username": "alice", "email": "alice@x.com", "password": "secret123",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	readError := func(resp *http.Response) string {
		var body struct {
			Error string `json:"error"`
		}
		decodeBody(t, resp, &body)
		return body.Error
	}

	wrongPassword := postJSON(t, client, ts.URL+"/auth/login", map[string]string{
		"identifier": "alice@x.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	unknownUser := postJSON(t, client, ts.URL+"/auth/login", map[string]string{
		"identifier": "ghost@x.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, unknownUser.StatusCode)

	assert.Equal(t, readError(wrongPassword), readError(unknownUser),
		"login failures must carry an identical message")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, _ := newTestServer(t)
	client := ts.Client()

	resp, err := client.Get(ts.URL + "/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer bogus")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetEndpoints(t *testing.T) {
	ts, mailer := newTestServer(t)
	client := ts.Client()

	resp := postJSON(t, client, ts.URL+"/auth/register", map[string]string{
		"name": "Alice", "username": "alice", "email": "alice@x.com", "password": "secret123",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Known and unknown emails get the same success-shaped answer.
	for _, email := range []string{"alice@x.com", "ghost@x.com"} {
		resp = postJSON(t, client, ts.URL+"/auth/password-reset/request", map[string]string{"email": email})
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "email %s", email)
	}
	require.NotEmpty(t, mailer.codes["alice@x.com"])
	assert.Empty(t, mailer.codes["ghost@x.com"])

	// Wrong code is rejected, right code resets the password.
	resp = postJSON(t, client, ts.URL+"/auth/password-reset/confirm", map[string]string{
		"email": "alice@x.com", "otp": "wrong!", "new_password": "newsecret",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, client, ts.URL+"/auth/password-reset/confirm", map[string]string{
		"email": "alice@x.com", "otp": mailer.codes["alice@x.com"], "new_password": "newsecret",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, client, ts.URL+"/auth/login", map[string]string{
		"identifier": "alice@x.com", "password": "newsecret",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
