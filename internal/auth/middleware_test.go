package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/sessionguard/internal/models"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockSessionInitializer struct {
	InitFunc func(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error)
}

func (m *MockSessionInitializer) Init(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error) {
	return m.InitFunc(ctx, client)
}

var testCookies = CookieConfig{Name: "sg_session", SameSite: "lax", MaxAge: time.Hour}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func guestState(client models.ClientIdentity) *models.AuthState {
	reg := NewRegistry()
	ApplyPermissions(reg, models.NewGuestUser())
	return &models.AuthState{
		Client:      client,
		Status:      models.StatusGuest,
		CurrentUser: models.NewGuestUser(),
		Permissions: reg,
	}
}

func TestSessionMiddleware_StoresStateAndIssuesCookie(t *testing.T) {
	var seen models.ClientIdentity
	init := &MockSessionInitializer{
		InitFunc: func(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error) {
			seen = client
			state := guestState(client)
			state.IssuedToken = "fresh-token"
			return state, nil
		},
	}

	var got *models.AuthState
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = StateFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	rec := httptest.NewRecorder()

	SessionMiddleware(init, testCookies, nil, discardLogger())(next).ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, models.ClientBrowser, seen.Kind)
	assert.Equal(t, "203.0.113.9", seen.IPAddress)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sg_session", cookies[0].Name)
	assert.Equal(t, "fresh-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Empty(t, got.IssuedToken, "token is consumed once written")
}

func TestSessionMiddleware_APIClientGetsHeader(t *testing.T) {
	init := &MockSessionInitializer{
		InitFunc: func(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error) {
			state := guestState(client)
			state.IssuedToken = "api-token"
			return state, nil
		},
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(pkghttp.SessionTokenHeader, "stale-token")
	rec := httptest.NewRecorder()

	SessionMiddleware(init, testCookies, nil, discardLogger())(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, "api-token", rec.Header().Get(pkghttp.SessionTokenHeader))
	assert.Empty(t, rec.Result().Cookies())
}

func TestSessionMiddleware_StoreUnavailableIs503(t *testing.T) {
	init := &MockSessionInitializer{
		InitFunc: func(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error) {
			return nil, models.ErrSessionUnavailable
		},
	}
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	SessionMiddleware(init, testCookies, nil, discardLogger())(next).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionMiddleware_UnexpectedErrorIs500(t *testing.T) {
	init := &MockSessionInitializer{
		InitFunc: func(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error) {
			return nil, errors.New("boom")
		},
	}

	rec := httptest.NewRecorder()
	SessionMiddleware(init, testCookies, nil, discardLogger())(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	adminReg := NewRegistry()
	ApplyPermissions(adminReg, &models.User{ID: 1, IsAdmin: true})
	userReg := NewRegistry()
	ApplyPermissions(userReg, &models.User{ID: 2})

	tests := []struct {
		name  string
		state *models.AuthState
		want  int
	}{
		{"no state", nil, http.StatusUnauthorized},
		{"guest", guestState(models.ClientIdentity{}), http.StatusUnauthorized},
		{"user without flag", &models.AuthState{Status: models.StatusAuthenticated, CurrentUser: &models.User{ID: 2}, Permissions: userReg}, http.StatusForbidden},
		{"admin", &models.AuthState{Status: models.StatusAuthenticated, CurrentUser: &models.User{ID: 1, IsAdmin: true}, Permissions: adminReg}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.state != nil {
				req = req.WithContext(WithState(req.Context(), tt.state))
			}
			rec := httptest.NewRecorder()

			RequirePermission(GroupUser, FlagAdmin)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestClientIdentityFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		kind  models.ClientKind
		token string
	}{
		{
			name:  "cookie",
			setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sg_session", Value: "c"}) },
			kind:  models.ClientBrowser,
			token: "c",
		},
		{
			name:  "header",
			setup: func(r *http.Request) { r.Header.Set(pkghttp.SessionTokenHeader, "h") },
			kind:  models.ClientAPI,
			token: "h",
		},
		{
			name:  "browser first visit",
			setup: func(r *http.Request) { r.Header.Set("User-Agent", "Mozilla/5.0") },
			kind:  models.ClientBrowser,
		},
		{
			name:  "script without token",
			setup: func(r *http.Request) { r.Header.Set("User-Agent", "curl/8.5.0") },
			kind:  models.ClientCLI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			tt.setup(req)

			id := ClientIdentityFromRequest(req, "sg_session", nil)

			assert.Equal(t, tt.kind, id.Kind)
			assert.Equal(t, tt.token, id.SessionToken)
		})
	}
}

func TestSetSessionCookie_ReplacesQueuedCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	http.SetCookie(rec, &http.Cookie{Name: "other", Value: "keep"})

	SetSessionCookie(rec, "first", testCookies)
	SetSessionCookie(rec, "second", testCookies)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "other", cookies[0].Name)
	assert.Equal(t, "second", cookies[1].Value)
}
