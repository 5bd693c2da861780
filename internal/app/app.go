// Package app wires configuration, storage and services into a runnable auth core.
// Both the API server and sessionctl build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/config"
	"github.com/BradenHooton/sessionguard/internal/database"
	"github.com/BradenHooton/sessionguard/internal/metrics"
	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/BradenHooton/sessionguard/internal/repositories"
	"github.com/BradenHooton/sessionguard/internal/repositories/memory"
	"github.com/BradenHooton/sessionguard/internal/services"
	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// UserStore is the user table as seen by every service plus account creation
type UserStore interface {
	services.UserRepository
	services.ActivationKeyRepository
	services.AdminLister
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// Stores bundles the repositories for one driver
type Stores struct {
	Sessions services.SessionRepository
	Attempts services.LoginAttemptRepository
	Users    UserStore
	DB       *database.DB // nil for the memory driver
}

// Close releases the database pool, if any
func (s *Stores) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}

// OpenStores connects the configured driver. With migrate set, postgres schemas are
// brought up to date before the repositories are returned.
func OpenStores(ctx context.Context, cfg *config.DatabaseConfig, migrate bool, logger *slog.Logger) (*Stores, error) {
	switch cfg.Driver {
	case DriverMemory:
		logger.Warn("using in-memory store, state is lost on restart")
		store := memory.NewStore()
		return &Stores{
			Sessions: store.Sessions(),
			Attempts: store.Attempts(),
			Users:    store.Users(),
		}, nil

	case DriverPostgres, "":
		db, err := database.NewConnection(cfg, logger)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(ctx, db.Pool, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		return &Stores{
			Sessions: repositories.NewSessionRepository(db),
			Attempts: repositories.NewLoginAttemptRepository(db),
			Users:    repositories.NewUserRepository(db),
			DB:       db,
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Driver)
	}
}

// App holds the wired services
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Audit    *pkglogger.AuditLogger
	Stores   *Stores
	Registry *prometheus.Registry
	Metrics  *metrics.Auth

	Sessions *services.SessionService
	Ledger   *services.LedgerService
	Auth     *services.AuthService
	Resets   *services.PasswordResetService
}

// New wires the services on top of stores
func New(ctx context.Context, cfg *config.Config, stores *Stores, logger *slog.Logger) (*App, error) {
	registry := metrics.NewRegistry()
	m := metrics.NewAuth(registry)
	auditLogger := pkglogger.NewAuditLogger(logger, cfg.Server.Env)

	sessions := services.NewSessionService(stores.Sessions, services.SessionConfig{
		TTL:   cfg.Auth.ExpiresSession,
		Grace: cfg.Auth.SessionGrace,
	}, logger, m)

	ledgerConfig := services.LedgerConfig{
		MaxAttempts:              cfg.Auth.MaxAttempts,
		AttemptsWindow:           cfg.Auth.AttemptsWindow,
		SystemLockdownMultiplier: cfg.Auth.SystemLockdownMultiplier,
	}
	ledger := services.NewLedgerService(stores.Attempts, ledgerConfig, logger, m)

	email, err := newEmailService(ctx, cfg.Email, logger)
	if err != nil {
		return nil, err
	}
	notifier := services.NewAdminNotifier(stores.Users, email, cfg.Auth.LockoutTime, cfg.Auth.AttemptsWindow, logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	authService, err := services.NewAuthService(
		sessions,
		ledger,
		stores.Users,
		notifier,
		timingDelay,
		services.AuthServiceConfig{BcryptCost: cfg.Auth.BcryptCost},
		logger,
		auditLogger,
		m,
	)
	if err != nil {
		return nil, err
	}

	codec, err := auth.NewActivationCodec(cfg.Auth.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize activation codec: %w", err)
	}
	resets := services.NewPasswordResetService(stores.Users, codec, email, services.PasswordResetConfig{
		KeyTTL:         cfg.Auth.ResetKeyTTL,
		ResendCooldown: cfg.Auth.ResetResendCooldown,
		BcryptCost:     cfg.Auth.BcryptCost,
		ResetURLBase:   cfg.Email.ResetURLBase,
	}, logger, auditLogger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Audit:    auditLogger,
		Stores:   stores,
		Registry: registry,
		Metrics:  m,
		Sessions: sessions,
		Ledger:   ledger,
		Auth:     authService,
		Resets:   resets,
	}, nil
}

func newEmailService(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (services.EmailService, error) {
	if !cfg.Enabled() {
		logger.Warn("EMAIL_AWS_REGION or EMAIL_FROM_ADDRESS not set, emails are logged only")
		return services.NewLogEmailService(logger), nil
	}
	ses, err := services.NewAWSSESEmailService(ctx, cfg.AWSRegion, cfg.FromAddress, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}
	return ses, nil
}

// CookieConfig derives the session cookie settings
func (a *App) CookieConfig() auth.CookieConfig {
	return auth.CookieConfig{
		Name:     a.Config.Session.CookieName,
		Domain:   a.Config.Session.Domain,
		Secure:   a.Config.Session.Secure,
		SameSite: a.Config.Session.SameSite,
		MaxAge:   a.Config.Auth.ExpiresSession,
	}
}
