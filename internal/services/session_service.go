package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sessionguard/internal/metrics"
	"github.com/BradenHooton/sessionguard/internal/models"
	pkgauth "github.com/BradenHooton/sessionguard/pkg/auth"
	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

// SessionRepository defines the persistence operations behind SessionService
type SessionRepository interface {
	FindActive(ctx context.Context, token, ip, userAgent string, since time.Time) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Rotate(ctx context.Context, session *models.Session, newToken, newSecret string, userID int64, at time.Time) error
	Touch(ctx context.Context, id, userID int64, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionConfig holds the session lifetime settings
type SessionConfig struct {
	TTL   time.Duration // auth_expires_session
	Grace time.Duration // subtracted from TTL when matching, so a token is not accepted right at expiry
}

// SessionService owns the session time-window rules. Repositories only see absolute times.
type SessionService struct {
	repo    SessionRepository
	config  SessionConfig
	logger  *slog.Logger
	metrics *metrics.Auth
	now     func() time.Time
}

func NewSessionService(repo SessionRepository, config SessionConfig, logger *slog.Logger, m *metrics.Auth) *SessionService {
	return &SessionService{
		repo:    repo,
		config:  config,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// FindActive resolves a client's token to a live session bound to the same ip and user agent.
// Returns ErrNotFound when there is none.
func (s *SessionService) FindActive(ctx context.Context, client models.ClientIdentity) (*models.Session, error) {
	if client.SessionToken == "" {
		return nil, models.ErrNotFound
	}
	since := s.now().Add(-(s.config.TTL - s.config.Grace))
	return s.repo.FindActive(ctx, client.SessionToken, client.IPAddress, client.UserAgent, since)
}

// CreateGuest persists a user_id = 0 session for token
func (s *SessionService) CreateGuest(ctx context.Context, token, ip, userAgent string) (*models.Session, error) {
	return s.Create(ctx, token, ip, userAgent, models.GuestUserID)
}

// Create persists a session with a fresh secret_key. Any failure is reported as
// ErrSessionUnavailable.
func (s *SessionService) Create(ctx context.Context, token, ip, userAgent string, userID int64) (*models.Session, error) {
	secret, err := pkgauth.GenerateSecretKey()
	if err != nil {
		s.logger.Error("failed to generate session secret", slog.Any("error", err))
		return nil, models.ErrSessionUnavailable
	}

	session := &models.Session{
		SessionToken: token,
		IPAddress:    ip,
		UserAgent:    userAgent,
		SessionDate:  s.now(),
		UserID:       userID,
		SecretKey:    secret,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		s.logger.Error("failed to persist session",
			slog.String("ip", ip),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrSessionUnavailable
	}

	s.metrics.SessionCreated()
	s.logger.Debug("session created",
		slog.Int64("session_id", session.ID),
		slog.Int64("user_id", userID),
		slog.String("token", pkglogger.TokenPrefix(token)),
	)
	return session, nil
}

// Rotate moves session to newToken in place, keeping the old token as the grace pointer.
// session is updated to match the stored row on success.
func (s *SessionService) Rotate(ctx context.Context, session *models.Session, newToken string, userID int64) error {
	secret, err := pkgauth.GenerateSecretKey()
	if err != nil {
		return err
	}

	at := s.now()
	if err := s.repo.Rotate(ctx, session, newToken, secret, userID, at); err != nil {
		return fmt.Errorf("rotate session %d: %w", session.ID, err)
	}

	previous := session.SessionToken
	session.PreviousSessionToken = &previous
	session.SessionToken = newToken
	session.SecretKey = secret
	session.UserID = userID
	session.SessionDate = at

	s.metrics.SessionRotated()
	return nil
}

// Touch refreshes session_date and user_id without changing the token
func (s *SessionService) Touch(ctx context.Context, session *models.Session, userID int64) error {
	at := s.now()
	if err := s.repo.Touch(ctx, session.ID, userID, at); err != nil {
		return fmt.Errorf("touch session %d: %w", session.ID, err)
	}
	session.SessionDate = at
	session.UserID = userID
	return nil
}

// NeedsTouch reports whether the row is old enough that its sliding window should be renewed
func (s *SessionService) NeedsTouch(session *models.Session) bool {
	return s.now().Sub(session.SessionDate) > s.config.Grace
}

// PurgeExpired deletes sessions untouched for twice the TTL
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-2*s.config.TTL))
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	s.metrics.Purged("sessions", n)
	return n, nil
}
