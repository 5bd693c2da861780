package models

import (
	"errors"
	"time"
)

// AuthStatus is the per-request authentication state
type AuthStatus int

const (
	StatusUninitialized AuthStatus = iota
	StatusGuest
	StatusAuthenticated
)

func (s AuthStatus) String() string {
	switch s {
	case StatusGuest:
		return "guest"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}

// ClientKind determines how the engine treats the session store for a request
type ClientKind int

const (
	// ClientBrowser carries the session token in a cookie and receives rotated tokens
	ClientBrowser ClientKind = iota
	// ClientAPI carries the token in a header; login upgrades the session without rotation
	ClientAPI
	// ClientCLI never touches the session store
	ClientCLI
)

// ClientIdentity is supplied by the transport for every request
type ClientIdentity struct {
	IPAddress    string
	UserAgent    string
	SessionToken string // Opaque external token, may be empty
	Kind         ClientKind
}

// Permissions maps a permission group to its named flags
type Permissions map[string]map[string]bool

// Clone returns a deep copy
func (p Permissions) Clone() Permissions {
	out := make(Permissions, len(p))
	for group, flags := range p {
		copied := make(map[string]bool, len(flags))
		for name, v := range flags {
			copied[name] = v
		}
		out[group] = copied
	}
	return out
}

// PermissionSink receives the resolved permission map (one-way push)
type PermissionSink interface {
	SetUserPermissions(group string, flags map[string]bool)
	Reset()
}

// TokenSigner issues and checks tokens scoped to a session secret
type TokenSigner interface {
	Configure(secret string)
	Sign(purpose string) (string, error)
	Verify(token, purpose string) error
}

// AuthState is the in-process authentication state for one request
type AuthState struct {
	Client      ClientIdentity
	Status      AuthStatus
	CurrentUser *User
	Session     *Session
	Permissions PermissionSink
	Signer      TokenSigner
	LastError   string
	// Degraded is set when the session store was unreachable during init
	Degraded bool
	// IssuedToken is the token the transport must hand back to the client, if it changed
	IssuedToken string
	StartedAt   time.Time
}

// IsAuthenticated reports whether a real user is attached
func (s *AuthState) IsAuthenticated() bool {
	return s != nil && s.Status == StatusAuthenticated && s.CurrentUser != nil && !s.CurrentUser.IsGuest
}

// Fail records the public message for err and returns err unchanged
func (s *AuthState) Fail(err error) error {
	if s == nil || err == nil {
		return err
	}
	switch {
	case IsLoginFailure(err):
		s.LastError = PublicLoginFailure
	case errors.Is(err, ErrSessionUnavailable):
		s.LastError = PublicSessionUnavailable
	case errors.Is(err, ErrValidation):
		s.LastError = ErrValidation.Error()
	case errors.Is(err, ErrNotAuthenticated):
		s.LastError = ErrNotAuthenticated.Error()
	default:
		s.LastError = PublicInternalFailure
	}
	return err
}
