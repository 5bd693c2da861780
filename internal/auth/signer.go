package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes
const (
	PurposeCSRF = "csrf"
)

var ErrSignerNotConfigured = errors.New("signer has no session secret")

// signedClaims are the claims of a session-scoped token
type signedClaims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// SessionSigner issues HS256 tokens keyed by the current session's secret_key, so any
// token it signs dies with the session or with the next rotation.
type SessionSigner struct {
	mu     sync.RWMutex
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionSigner(ttl time.Duration) *SessionSigner {
	return &SessionSigner{ttl: ttl, now: time.Now}
}

// Configure replaces the signing secret
func (s *SessionSigner) Configure(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = []byte(secret)
}

func (s *SessionSigner) key() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.secret) == 0 {
		return nil, ErrSignerNotConfigured
	}
	return s.secret, nil
}

// Sign returns a token bound to purpose
func (s *SessionSigner) Sign(purpose string) (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := &signedClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose
func (s *SessionSigner) Verify(token, purpose string) error {
	key, err := s.key()
	if err != nil {
		return err
	}

	claims := &signedClaims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Purpose != purpose {
		return fmt.Errorf("token purpose %q does not match %q", claims.Purpose, purpose)
	}
	return nil
}
