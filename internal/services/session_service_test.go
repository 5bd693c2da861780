package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/BradenHooton/sessionguard/internal/repositories/memory"
)

func newTestSessionService(t *testing.T) (*SessionService, *memory.Store, *fakeClock) {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock()
	svc := NewSessionService(store.Sessions(), SessionConfig{TTL: 2 * time.Hour, Grace: time.Minute}, discardLogger(), nil)
	svc.now = clock.Now
	return svc, store, clock
}

func TestSessionService_FindActiveRequiresMatchingFingerprint(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()

	created, err := svc.CreateGuest(ctx, "token-a", "1.2.3.4", "agent-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.SecretKey)

	tests := []struct {
		name    string
		client  models.ClientIdentity
		wantErr error
	}{
		{"exact match", models.ClientIdentity{SessionToken: "token-a", IPAddress: "1.2.3.4", UserAgent: "agent-1"}, nil},
		{"other ip", models.ClientIdentity{SessionToken: "token-a", IPAddress: "1.2.3.5", UserAgent: "agent-1"}, models.ErrNotFound},
		{"other agent", models.ClientIdentity{SessionToken: "token-a", IPAddress: "1.2.3.4", UserAgent: "agent-2"}, models.ErrNotFound},
		{"empty token", models.ClientIdentity{IPAddress: "1.2.3.4", UserAgent: "agent-1"}, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := svc.FindActive(ctx, tt.client)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, created.ID, found.ID)
		})
	}
}

func TestSessionService_RotateKeepsGraceToken(t *testing.T) {
	svc, store, _ := newTestSessionService(t)
	ctx := context.Background()

	session, err := svc.CreateGuest(ctx, "old-token", "1.2.3.4", "agent")
	require.NoError(t, err)
	oldSecret := session.SecretKey

	require.NoError(t, svc.Rotate(ctx, session, "new-token", 42))

	assert.Equal(t, "new-token", session.SessionToken)
	assert.NotEqual(t, oldSecret, session.SecretKey)
	assert.Equal(t, int64(42), session.UserID)

	for _, token := range []string{"new-token", "old-token"} {
		found, err := svc.FindActive(ctx, models.ClientIdentity{SessionToken: token, IPAddress: "1.2.3.4", UserAgent: "agent"})
		require.NoError(t, err, token)
		assert.Equal(t, session.ID, found.ID)
	}

	// Next rotation drops the first generation
	require.NoError(t, svc.Rotate(ctx, session, "newest-token", 42))
	_, err = svc.FindActive(ctx, models.ClientIdentity{SessionToken: "old-token", IPAddress: "1.2.3.4", UserAgent: "agent"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	n, _ := store.Sessions().Count(ctx)
	assert.Equal(t, 1, n)
}

func TestSessionService_RotateRemovesCollidingRows(t *testing.T) {
	svc, store, _ := newTestSessionService(t)
	ctx := context.Background()

	session, err := svc.CreateGuest(ctx, "mine", "1.2.3.4", "agent")
	require.NoError(t, err)
	_, err = svc.CreateGuest(ctx, "taken", "5.6.7.8", "agent")
	require.NoError(t, err)

	require.NoError(t, svc.Rotate(ctx, session, "taken", 7))

	n, _ := store.Sessions().Count(ctx)
	assert.Equal(t, 1, n)
	row, ok := store.Sessions().Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, "taken", row.SessionToken)
}

func TestSessionService_CreateFailureIsUnavailable(t *testing.T) {
	svc, store, _ := newTestSessionService(t)
	store.FailNext(errors.New("read-only transaction"))

	_, err := svc.CreateGuest(context.Background(), "t", "1.2.3.4", "agent")

	assert.ErrorIs(t, err, models.ErrSessionUnavailable)
}

func TestSessionService_TouchAndNeedsTouch(t *testing.T) {
	svc, _, clock := newTestSessionService(t)
	ctx := context.Background()

	session, err := svc.CreateGuest(ctx, "t", "1.2.3.4", "agent")
	require.NoError(t, err)
	assert.False(t, svc.NeedsTouch(session))

	clock.Advance(10 * time.Minute)
	assert.True(t, svc.NeedsTouch(session))

	require.NoError(t, svc.Touch(ctx, session, 9))
	assert.False(t, svc.NeedsTouch(session))
	assert.Equal(t, int64(9), session.UserID)
	assert.Equal(t, "t", session.SessionToken)
}

func TestSessionService_PurgeExpiredUsesTwiceTTL(t *testing.T) {
	svc, store, clock := newTestSessionService(t)
	ctx := context.Background()

	_, err := svc.CreateGuest(ctx, "old", "1.2.3.4", "agent")
	require.NoError(t, err)
	clock.Advance(3 * time.Hour)
	_, err = svc.CreateGuest(ctx, "recent", "1.2.3.4", "agent")
	require.NoError(t, err)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "3h old row is inside 2*ttl")

	clock.Advance(90 * time.Minute)
	n, err = svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, _ := store.Sessions().Count(ctx)
	assert.Equal(t, 1, count)
}
