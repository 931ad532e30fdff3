package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/cache"
	"github.com/tokenportal/tokenportal/internal/model"
	"github.com/tokenportal/tokenportal/internal/repository"
)

// expiredSnapshotTTL is how long an already-expired row is cached after
// a durable-store lookup, to absorb repeated validations of a dead
// token without re-hitting the database every time.
const expiredSnapshotTTL = time.Minute

// TokenHashStore is the durable lookup the validation gateway needs.
type TokenHashStore interface {
	GetAPITokenByHash(ctx context.Context, tokenHash string) (*model.APIToken, error)
}

// Validator is the dual-tier token validation gateway: cache first,
// durable store on miss with snapshot writeback. The cache is only ever
// a projection of the durable row; any staleness is resolved here.
type Validator struct {
	tokens   TokenHashStore
	cache    *cache.Cache
	logger   *slog.Logger
	cacheTTL time.Duration // ceiling on snapshot lifetime
}

// NewValidator creates a Validator.
func NewValidator(tokens TokenHashStore, c *cache.Cache, logger *slog.Logger, cacheTTL time.Duration) *Validator {
	return &Validator{tokens: tokens, cache: c, logger: logger, cacheTTL: cacheTTL}
}

// Validate resolves a presented plaintext token to the identity it
// authenticates. Failures are the tagged sentinels ErrTokenNotFound,
// ErrTokenRevoked and ErrTokenExpired; any other error is an internal
// store failure and must not be conflated with an invalid credential.
// Revoked and expired verdicts still return the resolved identity so
// callers can attribute the rejection to the token in their audit
// trail; only ErrTokenNotFound leaves it nil.
//
// The plaintext is hashed immediately and only the digest is used as a
// lookup key; the plaintext is never stored or compared.
func (v *Validator) Validate(ctx context.Context, plaintext string) (*auth.Identity, error) {
	digest := auth.HashSecret(plaintext)
	now := time.Now().UTC()

	fromCache := true
	snap, err := v.cache.GetTokenSnapshot(ctx, digest)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("token cache lookup: %w", err)
		}

		fromCache = false
		snap, err = v.resolveFromStore(ctx, digest, now)
		if err != nil {
			return nil, err
		}
	}

	identity := &auth.Identity{UserID: snap.UserID, TokenID: snap.TokenID}

	if snap.IsRevoked {
		return identity, ErrTokenRevoked
	}

	if snap.ExpiresAt != nil && !snap.ExpiresAt.After(now) {
		// A stale unexpired-looking entry must not linger; the fresh
		// short-TTL snapshot written on the store path stays to absorb
		// repeated lookups.
		if fromCache {
			if err := v.cache.DeleteTokenSnapshot(ctx, digest); err != nil {
				v.logger.Error("failed to evict expired token snapshot",
					slog.Int64("token_id", snap.TokenID),
					slog.String("error", err.Error()),
				)
			}
		}
		return identity, ErrTokenExpired
	}

	return identity, nil
}

// resolveFromStore consults the durable store by digest and writes a
// fresh snapshot back to the cache, TTL-bounded by the ceiling and the
// row's remaining time to expiry.
func (v *Validator) resolveFromStore(ctx context.Context, digest string, now time.Time) (*cache.TokenSnapshot, error) {
	row, err := v.tokens.GetAPITokenByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("token store lookup: %w", err)
	}

	snap := &cache.TokenSnapshot{
		UserID:    row.UserID,
		TokenID:   row.ID,
		IsRevoked: row.IsRevoked,
		ExpiresAt: row.ExpiresAt,
	}

	if err := v.cache.SetTokenSnapshot(ctx, digest, snap, v.writebackTTL(row, now)); err != nil {
		// The snapshot in hand is still valid; the cache will be
		// repopulated on a later request.
		v.logger.Error("failed to write back token snapshot",
			slog.Int64("token_id", row.ID),
			slog.String("error", err.Error()),
		)
	}

	return snap, nil
}

// writebackTTL bounds the snapshot TTL by the ceiling and the row's
// remaining lifetime. Already-expired rows get a short TTL so repeated
// lookups of a dead token do not hammer the durable store.
func (v *Validator) writebackTTL(row *model.APIToken, now time.Time) time.Duration {
	if row.ExpiresAt == nil {
		return v.cacheTTL
	}
	remaining := row.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return expiredSnapshotTTL
	}
	if remaining < v.cacheTTL {
		return remaining
	}
	return v.cacheTTL
}
