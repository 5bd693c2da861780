package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/BradenHooton/sessionguard/internal/services"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewGuestState returns a guest AuthState for kind with a configured signer
func NewGuestState(kind models.ClientKind) *models.AuthState {
	reg := auth.NewRegistry()
	guest := models.NewGuestUser()
	auth.ApplyPermissions(reg, guest)

	signer := auth.NewSessionSigner(time.Hour)
	signer.Configure("guest-session-secret")

	return &models.AuthState{
		Client:      models.ClientIdentity{IPAddress: "203.0.113.5", UserAgent: "Mozilla/5.0", Kind: kind},
		Status:      models.StatusGuest,
		CurrentUser: guest,
		Session:     &models.Session{ID: 1, SessionToken: "guest-token", SecretKey: "guest-session-secret"},
		Permissions: reg,
		Signer:      signer,
	}
}

// Authenticate turns state into an authenticated state for user
func Authenticate(state *models.AuthState, user *models.User) {
	state.CurrentUser = user
	state.Status = models.StatusAuthenticated
	state.Session.UserID = user.ID
	auth.ApplyPermissions(state.Permissions, user)
}

// WithState attaches state to the request context, as SessionMiddleware does
func WithState(r *http.Request, state *models.AuthState) *http.Request {
	return r.WithContext(auth.WithState(r.Context(), state))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthEngine implements AuthEngine for testing
type MockAuthEngine struct {
	LoginFunc  func(ctx context.Context, state *models.AuthState, identifier, password string) error
	LogoutFunc func(ctx context.Context, state *models.AuthState) error
}

func (m *MockAuthEngine) Login(ctx context.Context, state *models.AuthState, identifier, password string) error {
	if m.LoginFunc == nil {
		if identifier == "" && !state.IsAuthenticated() {
			return models.ErrNotAuthenticated
		}
		return nil
	}
	return m.LoginFunc(ctx, state, identifier, password)
}

func (m *MockAuthEngine) Logout(ctx context.Context, state *models.AuthState) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, state)
}

// MockPasswordResetter implements PasswordResetter for testing
type MockPasswordResetter struct {
	RequestResetFunc func(ctx context.Context, identifier string) error
	ResetFunc        func(ctx context.Context, key, newPassword string) error
}

func (m *MockPasswordResetter) RequestReset(ctx context.Context, identifier string) error {
	if m.RequestResetFunc == nil {
		return nil
	}
	return m.RequestResetFunc(ctx, identifier)
}

func (m *MockPasswordResetter) Reset(ctx context.Context, key, newPassword string) error {
	if m.ResetFunc == nil {
		return nil
	}
	return m.ResetFunc(ctx, key, newPassword)
}

// MockLockdownStatus implements LockdownStatus for testing
type MockLockdownStatus struct {
	IsSystemLockedFunc func(ctx context.Context) (bool, int, error)
	Cfg                services.LedgerConfig
}

func (m *MockLockdownStatus) IsSystemLocked(ctx context.Context) (bool, int, error) {
	if m.IsSystemLockedFunc == nil {
		return false, 0, nil
	}
	return m.IsSystemLockedFunc(ctx)
}

func (m *MockLockdownStatus) Config() services.LedgerConfig {
	return m.Cfg
}
