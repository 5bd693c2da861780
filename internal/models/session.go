package models

import "time"

// Session is one browser session's authentication state
type Session struct {
	ID                   int64     `db:"id"`
	SessionToken         string    `db:"session_token"`
	PreviousSessionToken *string   `db:"previous_session_token"` // Set only right after rotation
	IPAddress            string    `db:"ip_address"`
	UserAgent            string    `db:"user_agent"`
	SessionDate          time.Time `db:"session_date"` // Last touched
	UserID               int64     `db:"user_id"`      // 0 = guest
	SecretKey            string    `db:"secret_key"`   // Per-session signing secret
}

// IsPersisted reports whether the session has a backing store row
func (s *Session) IsPersisted() bool {
	return s != nil && s.ID > 0
}

// IsGuest reports whether no user is attached to the session
func (s *Session) IsGuest() bool {
	return s == nil || s.UserID == GuestUserID
}
