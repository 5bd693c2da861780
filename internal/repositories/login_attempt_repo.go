package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sessionguard/internal/database"
	"github.com/BradenHooton/sessionguard/internal/models"
)

// LoginAttemptRepository handles database operations for the failed-login ledger
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// attemptColumn maps an attempt type to its ledger column. The result is never user input.
func attemptColumn(t models.AttemptType) (string, error) {
	switch t {
	case models.AttemptByIP:
		return "ip_address", nil
	case models.AttemptByUsername:
		return "identifier", nil
	case models.AttemptBySession:
		return "session_token", nil
	}
	return "", fmt.Errorf("unknown attempt type %q", t)
}

// Record appends a failed attempt
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (identifier, ip_address, session_token, attempt_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.Identifier,
		attempt.IPAddress,
		attempt.SessionToken,
		attempt.AttemptTime,
	).Scan(&attempt.ID)
	return database.MapPostgresError(err)
}

// CountSince returns the number of attempts keyed on value at or after since
func (r *LoginAttemptRepository) CountSince(ctx context.Context, value string, t models.AttemptType, since time.Time) (int, error) {
	column, err := attemptColumn(t)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM login_attempts WHERE ` + column + ` = $1 AND attempt_time >= $2`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, value, since).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// CountAllSince returns the number of attempts across every identifier at or after since
func (r *LoginAttemptRepository) CountAllSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE attempt_time >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// DeleteMatching removes every attempt that shares any non-empty field of scope
func (r *LoginAttemptRepository) DeleteMatching(ctx context.Context, scope models.AttemptScope) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE ($1 <> '' AND identifier = $1)
		   OR ($2 <> '' AND ip_address = $2)
		   OR ($3 <> '' AND session_token = $3)
	`

	tag, err := r.db.Pool.Exec(ctx, query, scope.Identifier, scope.IPAddress, scope.SessionToken)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan removes attempts recorded before cutoff
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempt_time < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
