package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sessionguard/internal/metrics"
	"github.com/BradenHooton/sessionguard/internal/models"
)

// LoginAttemptRepository defines the persistence operations behind LedgerService
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	CountSince(ctx context.Context, value string, t models.AttemptType, since time.Time) (int, error)
	CountAllSince(ctx context.Context, since time.Time) (int, error)
	DeleteMatching(ctx context.Context, scope models.AttemptScope) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LedgerConfig holds the brute-force thresholds
type LedgerConfig struct {
	MaxAttempts              int
	AttemptsWindow           time.Duration
	SystemLockdownMultiplier int
}

// SystemThreshold is the global failed-attempt count that triggers lockdown
func (c LedgerConfig) SystemThreshold() int {
	return c.MaxAttempts * c.SystemLockdownMultiplier
}

// LedgerService counts failed logins over a sliding window
type LedgerService struct {
	repo    LoginAttemptRepository
	config  LedgerConfig
	logger  *slog.Logger
	metrics *metrics.Auth
	now     func() time.Time
}

func NewLedgerService(repo LoginAttemptRepository, config LedgerConfig, logger *slog.Logger, m *metrics.Auth) *LedgerService {
	return &LedgerService{
		repo:    repo,
		config:  config,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (s *LedgerService) Config() LedgerConfig {
	return s.config
}

// Record appends one failed attempt stamped with the current time
func (s *LedgerService) Record(ctx context.Context, identifier, ip, sessionToken string) error {
	attempt := &models.LoginAttempt{
		Identifier:   identifier,
		IPAddress:    ip,
		SessionToken: sessionToken,
		AttemptTime:  s.now(),
	}
	if err := s.repo.Record(ctx, attempt); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// CountSince counts attempts keyed on value within the trailing window
func (s *LedgerService) CountSince(ctx context.Context, value string, t models.AttemptType, window time.Duration) (int, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: attempt type %q", models.ErrBadRequest, t)
	}
	return s.repo.CountSince(ctx, value, t, s.now().Add(-window))
}

// CountSystemSince counts every attempt within the trailing window
func (s *LedgerService) CountSystemSince(ctx context.Context, window time.Duration) (int, error) {
	return s.repo.CountAllSince(ctx, s.now().Add(-window))
}

// IsBlocked reports whether value has reached MaxAttempts within AttemptsWindow.
// An empty value is never blocked.
func (s *LedgerService) IsBlocked(ctx context.Context, value string, t models.AttemptType) (bool, error) {
	if value == "" {
		return false, nil
	}
	count, err := s.CountSince(ctx, value, t, s.config.AttemptsWindow)
	if err != nil {
		return false, err
	}
	return count >= s.config.MaxAttempts, nil
}

// IsSystemLocked reports whether the global failure count has reached the lockdown threshold
func (s *LedgerService) IsSystemLocked(ctx context.Context) (bool, int, error) {
	count, err := s.CountSystemSince(ctx, s.config.AttemptsWindow)
	if err != nil {
		return false, 0, err
	}
	return count >= s.config.SystemThreshold(), count, nil
}

// Clear deletes every attempt matching the identifier, the ip or the session token
func (s *LedgerService) Clear(ctx context.Context, scope models.AttemptScope) (int64, error) {
	n, err := s.repo.DeleteMatching(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("clear login attempts: %w", err)
	}
	return n, nil
}

// PurgeOlderThan deletes attempts older than window
func (s *LedgerService) PurgeOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("purge login attempts: %w", err)
	}
	s.metrics.Purged("login_attempts", n)
	return n, nil
}

// PurgeExpired deletes attempts older than twice the attempts window
func (s *LedgerService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.PurgeOlderThan(ctx, 2*s.config.AttemptsWindow)
}
