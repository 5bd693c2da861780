package models

import "time"

// AttemptType selects which ledger column a failed-attempt count is keyed on
type AttemptType string

const (
	AttemptByIP       AttemptType = "ip"
	AttemptByUsername AttemptType = "username"
	AttemptBySession  AttemptType = "session"
)

// Valid reports whether t is one of the known attempt types
func (t AttemptType) Valid() bool {
	switch t {
	case AttemptByIP, AttemptByUsername, AttemptBySession:
		return true
	}
	return false
}

// LoginAttempt represents a single failed authentication event. Rows are never updated.
type LoginAttempt struct {
	ID           int64     `db:"id"`
	Identifier   string    `db:"identifier"` // Username or email as submitted
	IPAddress    string    `db:"ip_address"`
	SessionToken string    `db:"session_token"`
	AttemptTime  time.Time `db:"attempt_time"`
}

// AttemptScope is the identifier/ip/session triple purged after a verified login
type AttemptScope struct {
	Identifier   string
	IPAddress    string
	SessionToken string
}
