package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/sessionguard/internal/app"
	"github.com/BradenHooton/sessionguard/internal/config"
	"github.com/BradenHooton/sessionguard/internal/handlers"
	"github.com/BradenHooton/sessionguard/internal/middleware"
	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/BradenHooton/sessionguard/internal/routes"
	pkgauth "github.com/BradenHooton/sessionguard/pkg/auth"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

const (
	browserUA    = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"
	userPassword = "Correct-Horse-9"
)

type testServer struct {
	t      *testing.T
	router chi.Router
	core   *app.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: app.DriverMemory},
		Server:   config.ServerConfig{Env: "test", LoginRateLimit: 100},
		Auth: config.AuthConfig{
			SecretKey:                "routes-test-secret-0123456789",
			ExpiresSession:           2 * time.Hour,
			SessionGrace:             time.Minute,
			MaxAttempts:              3,
			LockoutTime:              15 * time.Minute,
			AttemptsWindow:           15 * time.Minute,
			SystemLockdownMultiplier: 10,
			ResetKeyTTL:              time.Hour,
			ResetResendCooldown:      5 * time.Minute,
			BcryptCost:               bcrypt.MinCost,
		},
		Session: config.SessionCookieConfig{CookieName: "sg_session", SameSite: "lax"},
		Email:   config.EmailConfig{ResetURLBase: "https://app.example.com"},
	}

	stores, err := app.OpenStores(ctx, &cfg.Database, false, logger)
	require.NoError(t, err)
	core, err := app.New(ctx, cfg, stores, logger)
	require.NoError(t, err)

	router := routes.NewRouter(routes.Dependencies{
		Env:            cfg.Server.Env,
		Sessions:       core.Auth,
		Cookies:        core.CookieConfig(),
		IPConfig:       &pkghttp.IPConfig{},
		LoginRateLimit: cfg.Server.LoginRateLimit,
		AuthHandler:    handlers.NewAuthHandler(core.Auth, core.Resets, core.CookieConfig(), logger),
		AdminHandler:   handlers.NewAdminHandler(core.Ledger, logger),
		Registry:       core.Registry,
		Logger:         logger,
	})

	return &testServer{t: t, router: router, core: core}
}

func (s *testServer) createUser(username string, admin bool) *models.User {
	hash, err := pkgauth.HashPasswordWithCost(userPassword, bcrypt.MinCost)
	require.NoError(s.t, err)
	user, err := s.core.Stores.Users.Create(context.Background(), &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Status:       models.UserStatusActive,
		IsAdmin:      admin,
	})
	require.NoError(s.t, err)
	return user
}

// browser carries a cookie jar of one and the latest CSRF token
type browser struct {
	s      *testServer
	cookie string
	csrf   string
}

func (b *browser) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(b.s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)
	if b.cookie != "" {
		req.AddCookie(&http.Cookie{Name: "sg_session", Value: b.cookie})
	}
	if b.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, b.csrf)
	}

	w := httptest.NewRecorder()
	b.s.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == "sg_session" {
			b.cookie = c.Value
		}
	}
	var status handlers.StatusResponse
	if w.Code == http.StatusOK && json.Unmarshal(w.Body.Bytes(), &status) == nil && status.CSRFToken != "" {
		b.csrf = status.CSRFToken
	}
	return w
}

func (b *browser) login(identifier, password string) *httptest.ResponseRecorder {
	return b.do("POST", "/auth/login", handlers.LoginRequest{Identifier: identifier, Password: password})
}

func TestBrowserLoginFlow(t *testing.T) {
	s := newTestServer(t)
	s.createUser("alice", false)
	b := &browser{s: s}

	w := b.do("GET", "/auth/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	guestCookie := b.cookie
	require.NotEmpty(t, guestCookie)
	require.NotEmpty(t, b.csrf)

	w = b.login("alice", userPassword)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEqual(t, guestCookie, b.cookie, "login must rotate the session token")

	var status handlers.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "authenticated", status.Status)
	assert.Equal(t, "alice", status.User.Username)

	w = b.do("GET", "/auth/status", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "authenticated", status.Status)
	userCookie := b.cookie

	w = b.do("POST", "/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = b.do("GET", "/auth/status", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "guest", status.Status)

	// A copy of the pre-logout cookie is no longer signed in
	stale := &browser{s: s, cookie: userCookie}
	w = stale.do("GET", "/auth/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status = handlers.StatusResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "guest", status.Status)
	assert.Nil(t, status.User)
}

func TestBrowserLoginRequiresCSRF(t *testing.T) {
	s := newTestServer(t)
	s.createUser("alice", false)
	b := &browser{s: s}

	b.do("GET", "/auth/status", nil)
	b.csrf = ""

	w := b.login("alice", userPassword)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLockoutLooksLikeBadPassword(t *testing.T) {
	s := newTestServer(t)
	s.createUser("alice", false)
	b := &browser{s: s}
	b.do("GET", "/auth/status", nil)

	var bad string
	for i := 0; i < 3; i++ {
		w := b.login("alice", "wrong-password")
		require.Equal(t, http.StatusUnauthorized, w.Code)
		bad = w.Body.String()
	}

	w := b.login("alice", userPassword)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, bad, w.Body.String())
}

func TestAdminLockdownRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	s.createUser("alice", false)
	s.createUser("root", true)

	anon := &browser{s: s}
	assert.Equal(t, http.StatusUnauthorized, anon.do("GET", "/admin/lockdown", nil).Code)

	user := &browser{s: s}
	user.do("GET", "/auth/status", nil)
	require.Equal(t, http.StatusOK, user.login("alice", userPassword).Code)
	assert.Equal(t, http.StatusForbidden, user.do("GET", "/admin/lockdown", nil).Code)

	admin := &browser{s: s}
	admin.do("GET", "/auth/status", nil)
	require.Equal(t, http.StatusOK, admin.login("root", userPassword).Code)
	w := admin.do("GET", "/admin/lockdown", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.LockdownResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Locked)
	assert.Equal(t, 30, resp.Threshold)
}

func TestAPIClientKeepsHeaderToken(t *testing.T) {
	s := newTestServer(t)
	s.createUser("alice", false)

	state, err := s.core.Auth.Init(context.Background(), models.ClientIdentity{
		IPAddress: "192.0.2.1",
		UserAgent: "deploy-bot/1.0",
		Kind:      models.ClientCLI,
	})
	require.NoError(t, err)
	require.NoError(t, s.core.Auth.Login(context.Background(), state, "alice", userPassword))
	token := state.IssuedToken
	require.NotEmpty(t, token)

	req := httptest.NewRequest("GET", "/auth/status", nil)
	req.Header.Set("User-Agent", "deploy-bot/1.0")
	req.Header.Set(pkghttp.SessionTokenHeader, token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status handlers.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "authenticated", status.Status)
	assert.Empty(t, status.CSRFToken)
	assert.Empty(t, w.Header().Get(pkghttp.SessionTokenHeader))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies(), "health checks must not open sessions")

	b := &browser{s: s}
	b.do("GET", "/auth/status", nil)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sessionguard_sessions_created_total 1")
}
