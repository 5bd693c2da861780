package models

import (
	"time"
)

// User statuses
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// GuestUserID is the user_id carried by sessions that have not authenticated
const GuestUserID int64 = 0

type User struct {
	ID            int64       `db:"id"`
	Username      string      `db:"username"`
	Email         string      `db:"email"`
	PasswordHash  string      `db:"password_hash"`
	Status        string      `db:"status"` // "active", "inactive"
	IsAdmin       bool        `db:"is_admin"`
	Permissions   Permissions `db:"permissions"`
	ActivationKey *string     `db:"activation_key"` // Current password-reset key, if any
	LastLogin     *time.Time  `db:"last_login"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`

	// IsGuest marks the synthesized descriptor used for unauthenticated requests
	IsGuest bool `db:"-"`
}

// IsActive reports whether the account may authenticate
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// NewGuestUser returns the in-memory descriptor for an unauthenticated visitor
func NewGuestUser() *User {
	return &User{
		ID:          GuestUserID,
		Username:    "guest",
		Status:      UserStatusActive,
		Permissions: Permissions{},
		IsGuest:     true,
	}
}
