package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/sessionguard/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc         func(ctx context.Context, id int64) (*models.User, error)
	GetByUsernameFunc   func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc      func(ctx context.Context, email string) (*models.User, error)
	UpdateLastLoginFunc func(ctx context.Context, id int64, at time.Time) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	return nil
}

// MockAdminLister implements AdminLister for testing
type MockAdminLister struct {
	ListActiveAdminsFunc func(ctx context.Context) ([]*models.User, error)
}

func (m *MockAdminLister) ListActiveAdmins(ctx context.Context) ([]*models.User, error) {
	if m.ListActiveAdminsFunc != nil {
		return m.ListActiveAdminsFunc(ctx)
	}
	return nil, nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetFunc func(ctx context.Context, to, link string, expiresAt time.Time) error
	SendLockdownAlertFunc func(ctx context.Context, to []string, alert LockdownAlert) error
}

func (m *MockEmailService) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	if m.SendPasswordResetFunc != nil {
		return m.SendPasswordResetFunc(ctx, to, link, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendLockdownAlert(ctx context.Context, to []string, alert LockdownAlert) error {
	if m.SendLockdownAlertFunc != nil {
		return m.SendLockdownAlertFunc(ctx, to, alert)
	}
	return nil
}

// MockLockdownNotifier implements LockdownNotifier for testing
type MockLockdownNotifier struct {
	NotifyLockdownFunc func(ctx context.Context, attempts, threshold int)
}

func (m *MockLockdownNotifier) NotifyLockdown(ctx context.Context, attempts, threshold int) {
	if m.NotifyLockdownFunc != nil {
		m.NotifyLockdownFunc(ctx, attempts, threshold)
	}
}

// fakeClock is a settable time source shared by the services under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
