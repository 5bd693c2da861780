package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/metrics"
	"github.com/BradenHooton/sessionguard/internal/models"
	pkgauth "github.com/BradenHooton/sessionguard/pkg/auth"
	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

const (
	notifyTimeout = 30 * time.Second

	// floor for the opportunistic purge interval when no session grace is configured
	minReentryPurgeInterval = time.Minute
)

// UserRepository defines the user operations the auth engine needs
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// AuthServiceConfig holds engine settings not owned by the session or ledger services
type AuthServiceConfig struct {
	BcryptCost   int
	CSRFTokenTTL time.Duration
}

// AuthService is the authentication engine. It holds no per-request state: every
// request gets its own *models.AuthState from Init.
type AuthService struct {
	sessions    *SessionService
	ledger      *LedgerService
	users       UserRepository
	notifier    LockdownNotifier
	timing      *auth.TimingDelay
	config      AuthServiceConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Auth

	dummyHash      string
	verifyPassword func(hash, password string) error
	newToken       func() (string, error)
	now            func() time.Time

	purgeMu   sync.Mutex
	lastPurge time.Time
}

// NewAuthService creates a new AuthService. notifier, timing and m may be nil.
func NewAuthService(
	sessions *SessionService,
	ledger *LedgerService,
	users UserRepository,
	notifier LockdownNotifier,
	timing *auth.TimingDelay,
	config AuthServiceConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Auth,
) (*AuthService, error) {
	if config.BcryptCost == 0 {
		config.BcryptCost = pkgauth.DefaultBcryptCost
	}
	if config.CSRFTokenTTL == 0 {
		config.CSRFTokenTTL = time.Hour
	}

	// Hashed at the real cost so a miss costs the same as a hit
	dummy, err := pkgauth.NewDummyHash(config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &AuthService{
		sessions:       sessions,
		ledger:         ledger,
		users:          users,
		notifier:       notifier,
		timing:         timing,
		config:         config,
		logger:         logger,
		auditLogger:    auditLogger,
		metrics:        m,
		dummyHash:      dummy,
		verifyPassword: pkgauth.ComparePassword,
		newToken:       pkgauth.GenerateSessionToken,
		now:            time.Now,
	}, nil
}

func (s *AuthService) newState(client models.ClientIdentity) *models.AuthState {
	return &models.AuthState{
		Client:      client,
		Status:      models.StatusUninitialized,
		Permissions: auth.NewRegistry(),
		Signer:      auth.NewSessionSigner(s.config.CSRFTokenTTL),
		StartedAt:   s.now(),
	}
}

// Init resolves the client's session into a fresh AuthState.
//
// CLI clients and requests arriving while the store is unreachable get a transient guest
// and no error. The only error is ErrSessionUnavailable, returned when a new guest row
// had to be written and could not be.
func (s *AuthService) Init(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error) {
	state := s.newState(client)

	if client.Kind == models.ClientCLI {
		if err := s.transientGuest(state, client.SessionToken); err != nil {
			return nil, err
		}
		return state, nil
	}

	session, err := s.sessions.FindActive(ctx, client)
	switch {
	case err == nil:
		s.resume(ctx, state, session)
	case errors.Is(err, models.ErrNotFound):
		if err := s.startGuest(ctx, state); err != nil {
			return nil, err
		}
	default:
		s.logger.Warn("session store unreachable, continuing as transient guest",
			slog.String("ip", client.IPAddress),
			slog.Any("error", err))
		s.metrics.SessionDegraded()
		state.Degraded = true
		if err := s.transientGuest(state, client.SessionToken); err != nil {
			return nil, err
		}
	}

	return state, nil
}

// resume attaches an existing row. A row pointing at a user that no longer exists or is
// inactive is demoted to guest.
func (s *AuthService) resume(ctx context.Context, state *models.AuthState, session *models.Session) {
	state.Session = session

	// Matched through the grace pointer: hand the current token back
	if session.SessionToken != state.Client.SessionToken {
		state.IssuedToken = session.SessionToken
	}

	user := models.NewGuestUser()
	if !session.IsGuest() {
		loaded, err := s.users.GetByID(ctx, session.UserID)
		switch {
		case err == nil && loaded.IsActive():
			user = loaded
		case err == nil || errors.Is(err, models.ErrNotFound):
			s.demote(ctx, state, session)
		default:
			s.logger.Warn("failed to load session user, continuing as guest",
				slog.Int64("session_id", session.ID),
				slog.Any("error", err))
			state.Degraded = true
		}
	}

	// Sliding expiry
	if !state.Degraded && s.sessions.NeedsTouch(session) {
		if err := s.sessions.Touch(ctx, session, session.UserID); err != nil {
			s.logger.Warn("failed to refresh session", slog.Int64("session_id", session.ID), slog.Any("error", err))
		}
	}

	s.attach(state, user)
}

func (s *AuthService) demote(ctx context.Context, state *models.AuthState, session *models.Session) {
	userID := session.UserID
	if err := s.sessions.Touch(ctx, session, models.GuestUserID); err != nil {
		s.logger.Warn("failed to demote session", slog.Int64("session_id", session.ID), slog.Any("error", err))
		session.UserID = models.GuestUserID
	}
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventSessionDemoted,
		UserID:        userID,
		SessionID:     session.ID,
		IPAddress:     state.Client.IPAddress,
		UserAgent:     state.Client.UserAgent,
		Success:       true,
		FailureReason: "user missing or inactive",
	})
}

// startGuest persists a guest row under a freshly generated token. The client's own
// token is never adopted.
func (s *AuthService) startGuest(ctx context.Context, state *models.AuthState) error {
	token, err := s.newToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return models.ErrSessionUnavailable
	}

	session, err := s.sessions.CreateGuest(ctx, token, state.Client.IPAddress, state.Client.UserAgent)
	if err != nil {
		return err
	}

	state.Session = session
	state.IssuedToken = token
	s.attach(state, models.NewGuestUser())
	return nil
}

// transientGuest attaches an in-memory guest session that has no row
func (s *AuthService) transientGuest(state *models.AuthState, token string) error {
	secret, err := pkgauth.GenerateSecretKey()
	if err != nil {
		s.logger.Error("failed to generate session secret", slog.Any("error", err))
		return models.ErrSessionUnavailable
	}

	state.Session = &models.Session{
		SessionToken: token,
		IPAddress:    state.Client.IPAddress,
		UserAgent:    state.Client.UserAgent,
		SessionDate:  s.now(),
		UserID:       models.GuestUserID,
		SecretKey:    secret,
	}
	s.attach(state, models.NewGuestUser())
	return nil
}

// attach sets the current user, rebuilds permissions and rekeys the signer
func (s *AuthService) attach(state *models.AuthState, user *models.User) {
	state.CurrentUser = user
	if user.IsGuest {
		state.Status = models.StatusGuest
	} else {
		state.Status = models.StatusAuthenticated
	}
	auth.ApplyPermissions(state.Permissions, user)
	if state.Signer != nil && state.Session != nil {
		state.Signer.Configure(state.Session.SecretKey)
	}
}

// VerifyCredentials checks identifier (username, then email) and password. It performs
// exactly one bcrypt comparison whether or not the account exists.
func (s *AuthService) VerifyCredentials(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, models.ErrValidation
	}

	user, err := s.lookupUser(ctx, identifier)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("user lookup failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user == nil || !user.IsActive() {
		_ = s.verifyPassword(s.dummyHash, password)
		return nil, models.ErrInvalidCredentials
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) lookupUser(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, identifier)
	if err == nil || !errors.Is(err, models.ErrNotFound) {
		return user, err
	}
	return s.users.GetByEmail(ctx, identifier)
}

// Login authenticates state's client. An empty identifier is an anonymous re-entry that
// only reports the current status.
//
// Lockouts and bad credentials are reported as different sentinels for logging and
// metrics, but state.LastError carries the same public message for both.
func (s *AuthService) Login(ctx context.Context, state *models.AuthState, identifier, password string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return s.reenter(ctx, state)
	}
	if password == "" {
		s.metrics.Login(metrics.OutcomeValidation)
		return state.Fail(models.ErrValidation)
	}

	start := time.Now()
	success := false
	defer func() { s.timing.WaitFrom(start, success) }()

	ledgerID := strings.ToLower(identifier)
	sessionToken := ""
	if state.Session != nil {
		sessionToken = state.Session.SessionToken
	}

	if err := s.checkSystemLockdown(ctx, state, identifier); err != nil {
		return state.Fail(err)
	}
	if err := s.checkBlocked(ctx, state, ledgerID, sessionToken); err != nil {
		return state.Fail(err)
	}

	user, err := s.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			s.recordFailure(ctx, state, identifier, ledgerID, sessionToken)
		} else {
			s.metrics.Login(metrics.OutcomeError)
		}
		return state.Fail(err)
	}

	if err := s.establish(ctx, state, user); err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return state.Fail(err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	// Clear under the token the failures were recorded with
	scope := models.AttemptScope{
		Identifier:   ledgerID,
		IPAddress:    state.Client.IPAddress,
		SessionToken: sessionToken,
	}
	if _, err := s.ledger.Clear(ctx, scope); err != nil {
		s.logger.Warn("failed to clear login attempts", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	success = true
	state.LastError = ""
	s.metrics.Login(metrics.OutcomeSuccess)
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:  pkglogger.EventLogin,
		UserID:     user.ID,
		SessionID:  state.Session.ID,
		Identifier: identifier,
		IPAddress:  state.Client.IPAddress,
		UserAgent:  state.Client.UserAgent,
		Success:    true,
	})
	return nil
}

func (s *AuthService) reenter(ctx context.Context, state *models.AuthState) error {
	if s.claimReentryPurge() {
		if _, err := s.sessions.PurgeExpired(ctx); err != nil {
			s.logger.Warn("opportunistic session purge failed", slog.Any("error", err))
		}
	}
	if state.IsAuthenticated() {
		return nil
	}
	return state.Fail(models.ErrNotAuthenticated)
}

// claimReentryPurge allows one opportunistic purge per session grace interval per
// process. The background cleanup manager does the regular housekeeping.
func (s *AuthService) claimReentryPurge() bool {
	interval := s.sessions.config.Grace
	if interval < minReentryPurgeInterval {
		interval = minReentryPurgeInterval
	}

	now := s.now()
	s.purgeMu.Lock()
	defer s.purgeMu.Unlock()
	if !s.lastPurge.IsZero() && now.Sub(s.lastPurge) < interval {
		return false
	}
	s.lastPurge = now
	return true
}

// checkSystemLockdown fails closed when the global count cannot be read
func (s *AuthService) checkSystemLockdown(ctx context.Context, state *models.AuthState, identifier string) error {
	locked, count, err := s.ledger.IsSystemLocked(ctx)
	if err != nil {
		s.logger.Error("failed to count system login attempts", slog.Any("error", err))
		s.metrics.Login(metrics.OutcomeError)
		return models.ErrLoginLocked
	}
	if !locked {
		return nil
	}

	threshold := s.ledger.Config().SystemThreshold()
	s.logger.Warn("login refused by system lockdown",
		slog.Int("attempts", count),
		slog.Int("threshold", threshold),
		slog.String("ip", state.Client.IPAddress))
	s.metrics.SystemLockdown()
	s.metrics.Login(metrics.OutcomeSystemLockdown)
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventSystemLockdown,
		Identifier:    identifier,
		IPAddress:     state.Client.IPAddress,
		UserAgent:     state.Client.UserAgent,
		FailureReason: "system_lockdown",
		Metadata:      map[string]string{"attempts": fmt.Sprint(count), "threshold": fmt.Sprint(threshold)},
	})
	s.notifyLockdown(ctx, count, threshold)
	return models.ErrSystemLockdown
}

func (s *AuthService) notifyLockdown(ctx context.Context, count, threshold int) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer cancel()
		s.notifier.NotifyLockdown(notifyCtx, count, threshold)
	}()
}

// checkBlocked tests ip, then session, then username. The caller only ever sees
// ErrLoginLocked; logs and metrics record which vector tripped.
func (s *AuthService) checkBlocked(ctx context.Context, state *models.AuthState, ledgerID, sessionToken string) error {
	vectors := []struct {
		value string
		kind  models.AttemptType
	}{
		{state.Client.IPAddress, models.AttemptByIP},
		{sessionToken, models.AttemptBySession},
		{ledgerID, models.AttemptByUsername},
	}

	for _, v := range vectors {
		blocked, err := s.ledger.IsBlocked(ctx, v.value, v.kind)
		if err != nil {
			s.logger.Error("failed to count login attempts",
				slog.String("vector", string(v.kind)),
				slog.Any("error", err))
			s.metrics.Login(metrics.OutcomeError)
			return models.ErrLoginLocked
		}
		if !blocked {
			continue
		}

		s.logger.Warn("login refused by lockout",
			slog.String("vector", string(v.kind)),
			slog.String("identifier", pkglogger.SanitizedIdentifier(ledgerID)),
			slog.String("ip", state.Client.IPAddress))
		s.metrics.Lockout(string(v.kind))
		s.metrics.Login(metrics.OutcomeLocked)
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLockout,
			Identifier:    ledgerID,
			IPAddress:     state.Client.IPAddress,
			UserAgent:     state.Client.UserAgent,
			FailureReason: "locked_" + string(v.kind),
		})
		return models.ErrLoginLocked
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, state *models.AuthState, identifier, ledgerID, sessionToken string) {
	if err := s.ledger.Record(ctx, ledgerID, state.Client.IPAddress, sessionToken); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
	}
	s.metrics.Login(metrics.OutcomeInvalid)
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		Identifier:    identifier,
		IPAddress:     state.Client.IPAddress,
		UserAgent:     state.Client.UserAgent,
		FailureReason: "invalid_credentials",
	})
}

// establish binds user to the session. Browsers get a rotated token on the same row;
// API clients keep their token; clients without a row get a new one.
func (s *AuthService) establish(ctx context.Context, state *models.AuthState, user *models.User) error {
	session := state.Session

	switch {
	case session.IsPersisted() && state.Client.Kind == models.ClientBrowser:
		token, err := s.newToken()
		if err != nil {
			s.logger.Error("failed to generate session token", slog.Any("error", err))
			return models.ErrSessionUnavailable
		}
		if err := s.sessions.Rotate(ctx, session, token, user.ID); err != nil {
			s.logger.Error("failed to rotate session", slog.Int64("session_id", session.ID), slog.Any("error", err))
			return models.ErrSessionUnavailable
		}
		state.IssuedToken = token
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventSessionRotated,
			UserID:    user.ID,
			SessionID: session.ID,
			IPAddress: state.Client.IPAddress,
			Success:   true,
		})

	case session.IsPersisted():
		if err := s.sessions.Touch(ctx, session, user.ID); err != nil {
			s.logger.Error("failed to upgrade session", slog.Int64("session_id", session.ID), slog.Any("error", err))
			return models.ErrSessionUnavailable
		}

	default:
		token, err := s.newToken()
		if err != nil {
			s.logger.Error("failed to generate session token", slog.Any("error", err))
			return models.ErrSessionUnavailable
		}
		created, err := s.sessions.Create(ctx, token, state.Client.IPAddress, state.Client.UserAgent, user.ID)
		if err != nil {
			return err
		}
		state.Session = created
		state.IssuedToken = token
		state.Degraded = false
		if state.Client.Kind == models.ClientCLI {
			state.Client.Kind = models.ClientAPI
		}
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventSessionCreated,
			UserID:    user.ID,
			SessionID: created.ID,
			IPAddress: state.Client.IPAddress,
			Success:   true,
		})
	}

	s.attach(state, user)
	return nil
}

// Logout drops the user and leaves a transient guest holding a fresh token. The stored
// row is demoted to guest so the pre-logout token no longer authenticates; the next Init
// does not find the new token and starts a guest row.
func (s *AuthService) Logout(ctx context.Context, state *models.AuthState) error {
	if !state.IsAuthenticated() {
		return state.Fail(models.ErrNotAuthenticated)
	}

	userID := state.CurrentUser.ID
	previous := state.Session
	sessionID := previous.ID

	if previous.IsPersisted() {
		if err := s.sessions.Touch(ctx, previous, models.GuestUserID); err != nil {
			s.logger.Warn("failed to demote session on logout",
				slog.Int64("session_id", sessionID),
				slog.Any("error", err))
		}
	}

	token, err := s.newToken()
	if err != nil {
		return fmt.Errorf("failed to generate session token: %w", err)
	}
	if err := s.transientGuest(state, token); err != nil {
		return err
	}
	state.IssuedToken = token
	state.LastError = ""

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: state.Client.IPAddress,
		UserAgent: state.Client.UserAgent,
		Success:   true,
	})
	return nil
}

// Purge deletes expired sessions and login attempts
func (s *AuthService) Purge(ctx context.Context) (sessions, attempts int64, err error) {
	sessions, err = s.sessions.PurgeExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	attempts, err = s.ledger.PurgeExpired(ctx)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, attempts, nil
}
