package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenKeyPrefix is the Redis key prefix for token snapshots.
// The full key format "apitoken:<hash>" and the JSON field names are
// part of the wire contract with cache inspection tooling.
const tokenKeyPrefix = "apitoken:"

func tokenKey(digest string) string {
	return tokenKeyPrefix + digest
}

// TokenSnapshot is the denormalized projection of an api_tokens row kept
// in Redis, keyed by the token's digest. It is a cache, not a source of
// truth: treat it as possibly stale or absent at any time.
type TokenSnapshot struct {
	UserID    int64
	TokenID   int64
	IsRevoked bool
	ExpiresAt *time.Time
}

// wireSnapshot is the JSON encoding of a TokenSnapshot.
type wireSnapshot struct {
	UserID       int64   `json:"user_id"`
	TokenID      int64   `json:"token_id"`
	IsRevoked    bool    `json:"is_revoked"`
	ExpiresAtISO *string `json:"expires_at_iso"`
}

// MarshalJSON encodes the snapshot with expires_at_iso as an ISO-8601
// UTC timestamp string, or null when the token never expires.
func (s TokenSnapshot) MarshalJSON() ([]byte, error) {
	w := wireSnapshot{
		UserID:    s.UserID,
		TokenID:   s.TokenID,
		IsRevoked: s.IsRevoked,
	}
	if s.ExpiresAt != nil {
		iso := s.ExpiresAt.UTC().Format(time.RFC3339)
		w.ExpiresAtISO = &iso
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form, rejecting unparseable timestamps.
func (s *TokenSnapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.UserID = w.UserID
	s.TokenID = w.TokenID
	s.IsRevoked = w.IsRevoked
	s.ExpiresAt = nil
	if w.ExpiresAtISO != nil && *w.ExpiresAtISO != "" {
		t, err := time.Parse(time.RFC3339, *w.ExpiresAtISO)
		if err != nil {
			return fmt.Errorf("parse expires_at_iso: %w", err)
		}
		utc := t.UTC()
		s.ExpiresAt = &utc
	}
	return nil
}

// SetTokenSnapshot stores a snapshot under the token's digest.
// A zero ttl stores the entry without expiry.
func (c *Cache) SetTokenSnapshot(ctx context.Context, digest string, snap *TokenSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal token snapshot: %w", err)
	}
	if err := c.client.Set(ctx, tokenKey(digest), data, ttl).Err(); err != nil {
		return fmt.Errorf("set token snapshot: %w", err)
	}
	return nil
}

// UpdateTokenSnapshot overwrites an existing snapshot while preserving
// whatever TTL the entry already carries. Used by revocation.
func (c *Cache) UpdateTokenSnapshot(ctx context.Context, digest string, snap *TokenSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal token snapshot: %w", err)
	}
	if err := c.client.Set(ctx, tokenKey(digest), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update token snapshot: %w", err)
	}
	return nil
}

// GetTokenSnapshot retrieves the snapshot for a token digest.
// Absent keys return ErrCacheMiss. A corrupted entry is deleted and also
// reported as ErrCacheMiss - malformed cache data is never trusted or
// propagated. Store connectivity failures are returned as-is.
func (c *Cache) GetTokenSnapshot(ctx context.Context, digest string) (*TokenSnapshot, error) {
	key := tokenKey(digest)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get token snapshot: %w", err)
	}

	var snap TokenSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Self-heal: drop the corrupted entry and fall through as a miss.
		_ = c.client.Del(ctx, key).Err()
		return nil, ErrCacheMiss
	}

	return &snap, nil
}

// DeleteTokenSnapshot removes the snapshot for a token digest.
func (c *Cache) DeleteTokenSnapshot(ctx context.Context, digest string) error {
	if err := c.client.Del(ctx, tokenKey(digest)).Err(); err != nil {
		return fmt.Errorf("delete token snapshot: %w", err)
	}
	return nil
}
