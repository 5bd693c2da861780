// Package memory provides mutex-guarded in-process implementations of the session,
// login-attempt and user repositories. It backs STORE_DRIVER=memory and unit tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/sessionguard/internal/models"
)

// Store holds every table behind one lock
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*models.Session
	attempts []*models.LoginAttempt
	users    map[int64]*models.User
	nextID   int64
	failNext error
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*models.Session),
		users:    make(map[int64]*models.User),
	}
}

// FailNext makes the next store call return err. Used to simulate an unreachable store.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// takeFailure must be called with the write lock held
func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Sessions returns the session repository view
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// Attempts returns the login-attempt repository view
func (s *Store) Attempts() *LoginAttemptRepository { return &LoginAttemptRepository{s: s} }

// Users returns the user repository view
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

type SessionRepository struct{ s *Store }

func copySession(in *models.Session) *models.Session {
	out := *in
	if in.PreviousSessionToken != nil {
		prev := *in.PreviousSessionToken
		out.PreviousSessionToken = &prev
	}
	return &out
}

func (r *SessionRepository) FindActive(ctx context.Context, token, ip, userAgent string, since time.Time) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return nil, err
	}

	var grace *models.Session
	for _, row := range r.s.sessions {
		if !row.SessionDate.After(since) || row.IPAddress != ip || row.UserAgent != userAgent {
			continue
		}
		if row.SessionToken == token {
			return copySession(row), nil
		}
		if row.PreviousSessionToken != nil && *row.PreviousSessionToken == token {
			grace = row
		}
	}
	if grace != nil {
		return copySession(grace), nil
	}
	return nil, models.ErrNotFound
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}

	for _, row := range r.s.sessions {
		if row.SessionToken == session.SessionToken {
			return models.ErrConflict
		}
	}
	session.ID = r.s.id()
	r.s.sessions[session.ID] = copySession(session)
	return nil
}

func (r *SessionRepository) Rotate(ctx context.Context, session *models.Session, newToken, newSecret string, userID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}

	row, ok := r.s.sessions[session.ID]
	if !ok {
		return models.ErrNotFound
	}
	oldToken := row.SessionToken

	matches := func(v string) bool { return v == oldToken || v == newToken }
	for id, other := range r.s.sessions {
		if id == session.ID {
			continue
		}
		if matches(other.SessionToken) || (other.PreviousSessionToken != nil && matches(*other.PreviousSessionToken)) {
			delete(r.s.sessions, id)
		}
	}

	row.PreviousSessionToken = &oldToken
	row.SessionToken = newToken
	row.SecretKey = newSecret
	row.UserID = userID
	row.SessionDate = at
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, id, userID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}

	row, ok := r.s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	row.SessionDate = at
	row.UserID = userID
	return nil
}

func (r *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return 0, err
	}

	var n int64
	for id, row := range r.s.sessions {
		if row.SessionDate.Before(cutoff) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.sessions), nil
}

// Get returns a copy of the row with id, for assertions
func (r *SessionRepository) Get(id int64) (*models.Session, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.sessions[id]
	if !ok {
		return nil, false
	}
	return copySession(row), true
}

type LoginAttemptRepository struct{ s *Store }

func attemptValue(a *models.LoginAttempt, t models.AttemptType) (string, error) {
	switch t {
	case models.AttemptByIP:
		return a.IPAddress, nil
	case models.AttemptByUsername:
		return a.Identifier, nil
	case models.AttemptBySession:
		return a.SessionToken, nil
	}
	return "", fmt.Errorf("unknown attempt type %q", t)
}

func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}

	attempt.ID = r.s.id()
	stored := *attempt
	r.s.attempts = append(r.s.attempts, &stored)
	return nil
}

func (r *LoginAttemptRepository) CountSince(ctx context.Context, value string, t models.AttemptType, since time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return 0, err
	}

	count := 0
	for _, a := range r.s.attempts {
		v, err := attemptValue(a, t)
		if err != nil {
			return 0, err
		}
		if v == value && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *LoginAttemptRepository) CountAllSince(ctx context.Context, since time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return 0, err
	}

	count := 0
	for _, a := range r.s.attempts {
		if !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *LoginAttemptRepository) DeleteMatching(ctx context.Context, scope models.AttemptScope) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return 0, err
	}

	match := func(field, want string) bool { return want != "" && field == want }
	return r.s.filterAttempts(func(a *models.LoginAttempt) bool {
		return match(a.Identifier, scope.Identifier) ||
			match(a.IPAddress, scope.IPAddress) ||
			match(a.SessionToken, scope.SessionToken)
	}), nil
}

func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return 0, err
	}

	return r.s.filterAttempts(func(a *models.LoginAttempt) bool {
		return a.AttemptTime.Before(cutoff)
	}), nil
}

// filterAttempts drops attempts for which drop returns true. Caller holds the write lock.
func (s *Store) filterAttempts(drop func(*models.LoginAttempt) bool) int64 {
	kept := s.attempts[:0]
	var removed int64
	for _, a := range s.attempts {
		if drop(a) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept
	return removed
}

type UserRepository struct{ s *Store }

func copyUser(in *models.User) *models.User {
	out := *in
	out.Permissions = in.Permissions.Clone()
	if in.ActivationKey != nil {
		key := *in.ActivationKey
		out.ActivationKey = &key
	}
	if in.LastLogin != nil {
		at := *in.LastLogin
		out.LastLogin = &at
	}
	return &out
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return nil, err
	}
	for _, u := range r.s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UserRepository) ListActiveAdmins(ctx context.Context) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.User
	for _, u := range r.s.users {
		if u.IsAdmin && u.IsActive() {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return nil, err
	}

	for _, u := range r.s.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return nil, models.ErrConflict
		}
	}

	now := time.Now()
	user.ID = r.s.id()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}
	if user.Permissions == nil {
		user.Permissions = models.Permissions{}
	}
	r.s.users[user.ID] = copyUser(user)
	return user, nil
}

func (r *UserRepository) update(id int64, fn func(*models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	fn(u)
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.update(id, func(u *models.User) { u.LastLogin = &at })
}

func (r *UserRepository) SetActivationKey(ctx context.Context, id int64, key *string) error {
	return r.update(id, func(u *models.User) {
		if key == nil {
			u.ActivationKey = nil
			return
		}
		k := *key
		u.ActivationKey = &k
		u.UpdatedAt = time.Now()
	})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.update(id, func(u *models.User) {
		u.PasswordHash = passwordHash
		u.ActivationKey = nil
		u.UpdatedAt = time.Now()
	})
}

// SetStatus changes a user's status, used by tests to deactivate accounts
func (r *UserRepository) SetStatus(id int64, status string) error {
	return r.update(id, func(u *models.User) { u.Status = status })
}
