package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession covers every session-token failure: bad signature,
// malformed token, expiry. Callers must surface one opaque message for
// all of them to avoid acting as a validity oracle.
var ErrInvalidSession = errors.New("could not validate credentials")

// SessionClaims are the claims carried by a portal session JWT.
type SessionClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// SessionSigner signs and verifies HS256 session tokens.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionSigner creates a signer with the given symmetric secret and
// default claim lifetime.
func NewSessionSigner(secret string, ttl time.Duration) *SessionSigner {
	return &SessionSigner{secret: []byte(secret), ttl: ttl}
}

// Sign mints a session token for the given user identity.
// The subject claim carries the email address.
func (s *SessionSigner) Sign(email string, userID int64, role string) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a session token, returning its claims.
// Expired tokens and bad signatures both fail with ErrInvalidSession.
func (s *SessionSigner) Verify(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Subject == "" || claims.UserID == 0 {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
