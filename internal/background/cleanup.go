package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger deletes expired sessions and login attempts
type Purger interface {
	Purge(ctx context.Context) (sessions, attempts int64, err error)
}

// CleanupManager periodically purges expired session and login-attempt rows, so the
// tables stay bounded even when no login traffic triggers the opportunistic purge
type CleanupManager struct {
	purger   Purger
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewCleanupManager(purger Purger, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		purger:   purger,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a purge immediately and then on every tick until Stop or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	sessions, attempts, err := cm.purger.Purge(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired rows", slog.Any("error", err))
		return
	}

	if sessions > 0 || attempts > 0 {
		cm.logger.Info("expired rows purged",
			slog.Int64("sessions", sessions),
			slog.Int64("login_attempts", attempts))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
