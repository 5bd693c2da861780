package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/google/uuid"
)

// LockdownNotifier is told whenever a login is refused by the system-wide lockdown
type LockdownNotifier interface {
	NotifyLockdown(ctx context.Context, attempts, threshold int)
}

// AdminLister returns the administrators to alert
type AdminLister interface {
	ListActiveAdmins(ctx context.Context) ([]*models.User, error)
}

// AdminNotifier emails every active administrator at most once per cooldown
type AdminNotifier struct {
	admins   AdminLister
	email    EmailService
	cooldown time.Duration
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent time.Time
}

func NewAdminNotifier(admins AdminLister, email EmailService, cooldown, window time.Duration, logger *slog.Logger) *AdminNotifier {
	return &AdminNotifier{
		admins:   admins,
		email:    email,
		cooldown: cooldown,
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
}

// NotifyLockdown sends the alert unless one went out within the cooldown. Failures are
// logged and never surfaced; a failed send does not consume the cooldown.
func (n *AdminNotifier) NotifyLockdown(ctx context.Context, attempts, threshold int) {
	now := n.now()

	n.mu.Lock()
	if !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.cooldown {
		n.mu.Unlock()
		return
	}
	previous := n.lastSent
	n.lastSent = now
	n.mu.Unlock()

	alert := LockdownAlert{
		ID:        uuid.NewString(),
		Attempts:  attempts,
		Threshold: threshold,
		Window:    n.window,
		At:        now,
	}

	if err := n.send(ctx, alert); err != nil {
		n.logger.Error("lockdown notification failed",
			slog.String("alert_id", alert.ID),
			slog.Any("error", err))
		n.mu.Lock()
		if n.lastSent.Equal(now) {
			n.lastSent = previous
		}
		n.mu.Unlock()
		return
	}

	n.logger.Warn("administrators notified of login lockdown",
		slog.String("alert_id", alert.ID),
		slog.Int("attempts", attempts),
		slog.Int("threshold", threshold))
}

func (n *AdminNotifier) send(ctx context.Context, alert LockdownAlert) error {
	admins, err := n.admins.ListActiveAdmins(ctx)
	if err != nil {
		return err
	}

	to := make([]string, 0, len(admins))
	for _, a := range admins {
		if a.Email != "" {
			to = append(to, a.Email)
		}
	}
	if len(to) == 0 {
		n.logger.Warn("login lockdown engaged but no administrator has an email address",
			slog.String("alert_id", alert.ID))
		return nil
	}
	return n.email.SendLockdownAlert(ctx, to, alert)
}
