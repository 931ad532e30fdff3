package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionSigner_RoundTrip(t *testing.T) {
	t.Parallel()

	signer := NewSessionSigner("test-secret", time.Hour)

	token, err := signer.Sign("user@example.com", 42, "user")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if claims.Subject != "user@example.com" {
		t.Errorf("Subject = %s, want user@example.com", claims.Subject)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}
	if claims.Role != "user" {
		t.Errorf("Role = %s, want user", claims.Role)
	}
}

func TestSessionSigner_Expired(t *testing.T) {
	t.Parallel()

	signer := NewSessionSigner("test-secret", -time.Minute)

	token, err := signer.Sign("user@example.com", 42, "user")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expired token error = %v, want ErrInvalidSession", err)
	}
}

func TestSessionSigner_WrongKey(t *testing.T) {
	t.Parallel()

	signer := NewSessionSigner("test-secret", time.Hour)
	other := NewSessionSigner("other-secret", time.Hour)

	token, err := signer.Sign("user@example.com", 42, "user")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("wrong-key error = %v, want ErrInvalidSession", err)
	}
}

func TestSessionSigner_RejectsUnexpectedAlgorithm(t *testing.T) {
	t.Parallel()

	signer := NewSessionSigner("test-secret", time.Hour)

	// alg=none with the library's explicit opt-in; must still be rejected.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
		UserID: 42,
		Role:   "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user@example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing with none failed: %v", err)
	}

	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("alg=none error = %v, want ErrInvalidSession", err)
	}
}

func TestSessionSigner_Garbage(t *testing.T) {
	t.Parallel()

	signer := NewSessionSigner("test-secret", time.Hour)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := signer.Verify(tok); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Verify(%q) error = %v, want ErrInvalidSession", tok, err)
		}
	}
}
