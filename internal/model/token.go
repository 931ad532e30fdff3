package model

import "time"

// APIToken represents a long-lived machine-to-machine credential.
// Only the SHA-256 hash of the secret is persisted; the plaintext is
// returned exactly once at creation and is unrecoverable afterward.
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	Name         string     `json:"name,omitempty"`
	TokenHash    string     `json:"-"` // Never serialize
	TokenPreview string     `json:"token_preview"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	IsRevoked    bool       `json:"is_revoked"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsExpired returns true if the token has an expiry in the past.
func (t *APIToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// APITokenResponse is the secret-free representation returned by listing
// and revocation endpoints.
type APITokenResponse struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name,omitempty"`
	TokenPreview string     `json:"token_preview"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	IsRevoked    bool       `json:"is_revoked"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ToResponse converts an APIToken to its secret-free response form.
func (t *APIToken) ToResponse() APITokenResponse {
	return APITokenResponse{
		ID:           t.ID,
		Name:         t.Name,
		TokenPreview: t.TokenPreview,
		ExpiresAt:    t.ExpiresAt,
		LastUsedAt:   t.LastUsedAt,
		IsRevoked:    t.IsRevoked,
		CreatedAt:    t.CreatedAt,
	}
}

// APITokenCreateRequest represents a request to create a new API token.
type APITokenCreateRequest struct {
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// APITokenCreateResponse includes the plaintext token (shown only once).
type APITokenCreateResponse struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name,omitempty"`
	Token        string     `json:"token"` // Plaintext - display once only!
	TokenPreview string     `json:"token_preview"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
