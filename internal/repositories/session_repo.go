package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sessionguard/internal/database"
	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, session_token, previous_session_token, ip_address, user_agent, session_date, user_id, secret_key`

// SessionRepository persists browser sessions in PostgreSQL
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindActive returns the session whose current or previous token matches, touched after
// since, with an identical ip/user-agent fingerprint. A current-token match wins over a
// grace-pointer match.
func (r *SessionRepository) FindActive(ctx context.Context, token, ip, userAgent string, since time.Time) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE (session_token = $1 OR previous_session_token = $1)
		  AND session_date > $2
		  AND ip_address = $3
		  AND user_agent = $4
		ORDER BY (session_token = $1) DESC, session_date DESC
		LIMIT 1
	`

	var session models.Session
	if err := pgxscan.Get(ctx, r.db.Pool, &session, query, token, since, ip, userAgent); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, database.MapPostgresError(err)
	}
	return &session, nil
}

// Create inserts a session row and sets its store-assigned ID
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (session_token, ip_address, user_agent, session_date, user_id, secret_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		session.SessionToken,
		session.IPAddress,
		session.UserAgent,
		session.SessionDate,
		session.UserID,
		session.SecretKey,
	).Scan(&session.ID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// Rotate replaces the token of an existing row in place. Other rows that reference either
// token as current or previous are removed first so a token never resolves to two rows.
func (r *SessionRepository) Rotate(ctx context.Context, session *models.Session, newToken, newSecret string, userID int64, at time.Time) error {
	oldToken := session.SessionToken

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM sessions
			WHERE id <> $1
			  AND (session_token IN ($2, $3) OR previous_session_token IN ($2, $3))
		`, session.ID, oldToken, newToken)
		if err != nil {
			return fmt.Errorf("remove conflicting sessions: %w", database.MapPostgresError(err))
		}

		tag, err := tx.Exec(ctx, `
			UPDATE sessions
			SET previous_session_token = $2,
			    session_token = $3,
			    secret_key = $4,
			    user_id = $5,
			    session_date = $6
			WHERE id = $1
		`, session.ID, oldToken, newToken, newSecret, userID, at)
		if err != nil {
			return fmt.Errorf("update session: %w", database.MapPostgresError(err))
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// Touch refreshes the last-seen time and the attached user of a row
func (r *SessionRepository) Touch(ctx context.Context, id, userID int64, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE sessions SET session_date = $2, user_id = $3 WHERE id = $1`,
		id, at, userID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes sessions last touched before cutoff
func (r *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE session_date < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored sessions
func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}
