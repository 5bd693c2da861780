package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/models"
	pkgauth "github.com/BradenHooton/sessionguard/pkg/auth"
	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

// ActivationKeyRepository defines the user operations behind password reset
type ActivationKeyRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetActivationKey(ctx context.Context, id int64, key *string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// PasswordResetConfig holds activation key lifetimes
type PasswordResetConfig struct {
	KeyTTL         time.Duration // reset link validity
	ResendCooldown time.Duration // minimum age of the stored key before a new one is mailed
	BcryptCost     int
	ResetURLBase   string
}

// PasswordResetService issues and redeems password-reset activation keys
type PasswordResetService struct {
	users       ActivationKeyRepository
	codec       *auth.ActivationCodec
	email       EmailService
	config      PasswordResetConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewPasswordResetService(users ActivationKeyRepository, codec *auth.ActivationCodec, email EmailService, config PasswordResetConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *PasswordResetService {
	if config.BcryptCost == 0 {
		config.BcryptCost = pkgauth.DefaultBcryptCost
	}
	return &PasswordResetService{
		users:       users,
		codec:       codec,
		email:       email,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// RequestReset mails a reset link when identifier names an active user. The result does
// not reveal whether the account exists; only an empty identifier is an error.
func (s *PasswordResetService) RequestReset(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.ErrValidation
	}

	user, err := s.users.GetByUsername(ctx, identifier)
	if errors.Is(err, models.ErrNotFound) {
		user, err = s.users.GetByEmail(ctx, identifier)
	}
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("password reset lookup failed", slog.Any("error", err))
		}
		return nil
	}
	if !user.IsActive() || user.Email == "" {
		return nil
	}

	key, expiresAt, err := s.issue(ctx, user, false)
	if errors.Is(err, models.ErrActivationKeyCooldown) {
		s.logger.Info("password reset suppressed by resend cooldown", slog.Int64("user_id", user.ID))
		return nil
	}
	if err != nil {
		s.logger.Error("failed to issue reset key", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	if err := s.email.SendPasswordReset(ctx, user.Email, s.ResetLink(key), expiresAt); err != nil {
		s.logger.Error("failed to send reset email", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// IssueFor creates and stores a key for userID. Without force a key younger than the
// resend cooldown yields ErrActivationKeyCooldown.
func (s *PasswordResetService) IssueFor(ctx context.Context, userID int64, force bool) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	key, _, err := s.issue(ctx, user, force)
	return key, err
}

func (s *PasswordResetService) issue(ctx context.Context, user *models.User, force bool) (string, time.Time, error) {
	if !force && user.ActivationKey != nil {
		if current, err := s.codec.Decode(*user.ActivationKey); err == nil &&
			!auth.CheckExpires(current.IssuedAt, s.config.ResendCooldown, auth.MustBeOlder, s.now()) {
			return "", time.Time{}, models.ErrActivationKeyCooldown
		}
	}

	encoded, key, err := s.codec.Issue(user.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.users.SetActivationKey(ctx, user.ID, &encoded); err != nil {
		return "", time.Time{}, fmt.Errorf("store activation key: %w", err)
	}
	return encoded, key.IssuedAt.Add(s.config.KeyTTL), nil
}

// Inspect decodes key and reports whether it is still inside the reset window
func (s *PasswordResetService) Inspect(key string) (auth.ActivationKey, bool, error) {
	decoded, err := s.codec.Decode(key)
	if err != nil {
		return auth.ActivationKey{}, false, err
	}
	return decoded, auth.CheckExpires(decoded.IssuedAt, s.config.KeyTTL, auth.MustBeYounger, s.now()), nil
}

// Reset redeems key and sets newPassword. The key must be the one currently stored for the
// user and younger than KeyTTL.
func (s *PasswordResetService) Reset(ctx context.Context, key, newPassword string) error {
	decoded, err := s.codec.Decode(key)
	if err != nil {
		return models.ErrActivationKeyInvalid
	}

	user, err := s.users.GetByID(ctx, decoded.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrActivationKeyInvalid
	}
	if err != nil {
		return err
	}
	if user.ActivationKey == nil || subtle.ConstantTimeCompare([]byte(*user.ActivationKey), []byte(key)) != 1 {
		return models.ErrActivationKeyInvalid
	}

	if !auth.CheckExpires(decoded.IssuedAt, s.config.KeyTTL, auth.MustBeYounger, s.now()) {
		return models.ErrActivationKeyExpired
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", models.ErrWeakPassword, err)
	}

	hash, err := pkgauth.HashPasswordWithCost(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordReset,
		UserID:    user.ID,
		Success:   true,
	})
	return nil
}

// ResetLink builds the URL mailed to the user
func (s *PasswordResetService) ResetLink(key string) string {
	return strings.TrimRight(s.config.ResetURLBase, "/") + "/auth/password/reset?key=" + url.QueryEscape(key)
}
