package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/database"
	"github.com/BradenHooton/sessionguard/internal/handlers"
	"github.com/BradenHooton/sessionguard/internal/metrics"
	"github.com/BradenHooton/sessionguard/internal/middleware"
	"github.com/BradenHooton/sessionguard/internal/routes"
	"github.com/BradenHooton/sessionguard/internal/services"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

// BrowserUA makes the server treat test clients as browsers
const BrowserUA = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"

// SentEmail represents a captured email message
type SentEmail struct {
	To   []string
	Kind string // "reset" or "lockdown"
	Link string
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *MockEmailService) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{To: []string{to}, Kind: "reset", Link: link})
	return nil
}

func (m *MockEmailService) SendLockdownAlert(ctx context.Context, to []string, alert services.LockdownAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{To: to, Kind: "lockdown"})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	Repos        Repositories
	EmailService *MockEmailService
	Auth         *services.AuthService
	Ledger       *services.LedgerService
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditLogger := pkglogger.NewAuditLogger(logger, "test")
	registry := metrics.NewRegistry()
	m := metrics.NewAuth(registry)

	repos := InitializeRepositories(db)
	mockEmail := &MockEmailService{}

	sessions := services.NewSessionService(repos.Sessions, services.SessionConfig{
		TTL:   2 * time.Hour,
		Grace: time.Minute,
	}, logger, m)
	ledger := services.NewLedgerService(repos.Attempts, services.LedgerConfig{
		MaxAttempts:              3,
		AttemptsWindow:           15 * time.Minute,
		SystemLockdownMultiplier: 10,
	}, logger, m)
	notifier := services.NewAdminNotifier(repos.Users, mockEmail, 15*time.Minute, 15*time.Minute, logger)

	authService, err := services.NewAuthService(sessions, ledger, repos.Users, notifier, nil,
		services.AuthServiceConfig{BcryptCost: bcrypt.MinCost}, logger, auditLogger, m)
	if err != nil {
		return nil, err
	}

	codec, err := auth.NewActivationCodec("integration-test-secret-0123456789")
	if err != nil {
		return nil, err
	}
	resets := services.NewPasswordResetService(repos.Users, codec, mockEmail, services.PasswordResetConfig{
		KeyTTL:         time.Hour,
		ResendCooldown: time.Minute,
		BcryptCost:     bcrypt.MinCost,
		ResetURLBase:   "http://localhost:3000",
	}, logger, auditLogger)

	cookies := auth.CookieConfig{Name: "sg_session", SameSite: "lax", MaxAge: 2 * time.Hour}
	router := routes.NewRouter(routes.Dependencies{
		Env:            "test",
		Sessions:       authService,
		Cookies:        cookies,
		IPConfig:       &pkghttp.IPConfig{},
		LoginRateLimit: 1000,
		AuthHandler:    handlers.NewAuthHandler(authService, resets, cookies, logger),
		AdminHandler:   handlers.NewAdminHandler(ledger, logger),
		Health:         db,
		Registry:       registry,
		Logger:         logger,
	})

	return &TestServer{
		Server:       httptest.NewServer(router),
		DB:           db,
		Repos:        repos,
		EmailService: mockEmail,
		Auth:         authService,
		Ledger:       ledger,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Browser is an HTTP client with a cookie jar that tracks the latest CSRF token
type Browser struct {
	ts     *TestServer
	client *http.Client
	CSRF   string
}

// NewBrowser returns a client with an empty cookie jar
func (ts *TestServer) NewBrowser() *Browser {
	jar, _ := cookiejar.New(nil)
	return &Browser{ts: ts, client: &http.Client{Jar: jar}}
}

// Request makes an HTTP request to the test server
func (b *Browser) Request(method, path string, body interface{}) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, b.ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", BrowserUA)
	if b.CSRF != "" {
		req.Header.Set(middleware.CSRFHeader, b.CSRF)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	var status handlers.StatusResponse
	if resp.StatusCode == http.StatusOK && json.Unmarshal(raw, &status) == nil && status.CSRFToken != "" {
		b.CSRF = status.CSRFToken
	}
	return resp, raw, nil
}

// SessionCookie returns the current session cookie value
func (b *Browser) SessionCookie() string {
	req, _ := http.NewRequest("GET", b.ts.Server.URL, nil)
	for _, c := range b.client.Jar.Cookies(req.URL) {
		if c.Name == "sg_session" {
			return c.Value
		}
	}
	return ""
}

// ParseStatus decodes a status response body
func ParseStatus(raw []byte) (handlers.StatusResponse, error) {
	var status handlers.StatusResponse
	err := json.Unmarshal(raw, &status)
	return status, err
}
