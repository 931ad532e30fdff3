package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// Token format: sk_live_{43 urlsafe chars from 32 random bytes}
const (
	// TokenPrefix is the fixed public prefix of every API token.
	TokenPrefix = "sk_live_"
	// tokenRandomBytes is the entropy of the secret part.
	tokenRandomBytes = 32
	// previewRandomChars is how many random characters the preview exposes.
	previewRandomChars = 4
)

// GeneratedToken contains the parts of a newly generated API token.
type GeneratedToken struct {
	Plaintext string // Full token (show once only)
	Hash      string // SHA-256 digest for storage and lookup
	Preview   string // Display-safe fragment, e.g. "sk_live_Ab3x..."
}

// GenerateAPIToken creates a new API token.
// Returns the plaintext (to show once), its digest (to store), and a
// non-reversible preview derived from the leading characters.
func GenerateAPIToken() (*GeneratedToken, error) {
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	plaintext := TokenPrefix + base64.RawURLEncoding.EncodeToString(buf)

	return &GeneratedToken{
		Plaintext: plaintext,
		Hash:      HashSecret(plaintext),
		Preview:   TokenPreview(plaintext),
	}, nil
}

// TokenPreview derives the display-safe preview from a plaintext token:
// the public prefix plus the first few random characters. Never derived
// from trailing characters so it reveals nothing usable of the secret.
func TokenPreview(plaintext string) string {
	random := strings.TrimPrefix(plaintext, TokenPrefix)
	if len(random) > previewRandomChars {
		random = random[:previewRandomChars]
	}
	return TokenPrefix + random + "..."
}

// GenerateOTPCode returns a numeric one-time code of the given length,
// uniform over the full digit range (leading zeros included).
func GenerateOTPCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
