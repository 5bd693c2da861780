package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/sessionguard/internal/database"
	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, password_hash, status, is_admin, permissions, activation_key, last_login, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if err := pgxscan.Get(ctx, r.pool, &user, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, database.MapPostgresError(err)
	}
	if user.Permissions == nil {
		user.Permissions = models.Permissions{}
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByEmail matches case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

// ListActiveAdmins returns every active administrator, used for lockdown alerts
func (r *UserRepository) ListActiveAdmins(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE is_admin = TRUE AND status = $1 ORDER BY id`
	if err := pgxscan.Select(ctx, r.pool, &users, query, models.UserStatusActive); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Status == "" {
		user.Status = models.UserStatusActive
	}
	if user.Permissions == nil {
		user.Permissions = models.Permissions{}
	}

	query := `
		INSERT INTO users (username, email, password_hash, status, is_admin, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Status,
		user.IsAdmin,
		user.Permissions,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
}

// SetActivationKey stores or clears (nil) the user's current password-reset key
func (r *UserRepository) SetActivationKey(ctx context.Context, id int64, key *string) error {
	return r.exec(ctx, `UPDATE users SET activation_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
}

// UpdatePassword stores a new hash and consumes any outstanding activation key
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, activation_key = NULL, updated_at = NOW() WHERE id = $1`,
		id, passwordHash,
	)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
