// Package auth provides credential hashing, token generation and
// session signing utilities.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret returns the hex-encoded SHA-256 digest of a secret.
//
// The digest is deliberately deterministic and unsalted: it doubles as
// the lookup key for token snapshots in both the cache and the database,
// which a salted hash could not do. Inputs are high-entropy random
// tokens or short-lived OTP codes scoped by email, so rainbow-table
// precomputation buys an attacker nothing useful.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretsEqual compares two digests in constant time.
func SecretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
