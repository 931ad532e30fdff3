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

// TokenStore is the durable token access the issuance service needs.
type TokenStore interface {
	CreateAPIToken(ctx context.Context, userID int64, name, tokenHash, tokenPreview string, expiresAt *time.Time) (*model.APIToken, error)
	ListAPITokensByUserID(ctx context.Context, userID int64, limit, offset int) ([]*model.APIToken, error)
	RevokeAPIToken(ctx context.Context, id, userID int64) (*model.APIToken, error)
}

// IssuedToken carries the plaintext of a freshly issued token alongside
// its stored metadata. The plaintext exists only in this value - it is
// never persisted or logged in recoverable form.
type IssuedToken struct {
	Plaintext string
	Token     *model.APIToken
}

// TokenService issues, lists and revokes API tokens, keeping the cache
// projection in step with the durable rows.
type TokenService struct {
	tokens   TokenStore
	cache    *cache.Cache
	logger   *slog.Logger
	cacheTTL time.Duration // ceiling on snapshot lifetime
}

// NewTokenService creates a TokenService. cacheTTL bounds how long a
// snapshot may outlive a durable-store mutation.
func NewTokenService(tokens TokenStore, c *cache.Cache, logger *slog.Logger, cacheTTL time.Duration) *TokenService {
	return &TokenService{tokens: tokens, cache: c, logger: logger, cacheTTL: cacheTTL}
}

// Issue generates a new API token for the owner, persists its digest
// and preview, and seeds the cache with a snapshot. Persistence failure
// aborts the operation; a cache-seed failure is logged only, since the
// validation gateway repopulates the cache from the durable store.
func (s *TokenService) Issue(ctx context.Context, ownerID int64, name string, expiresAt *time.Time) (*IssuedToken, error) {
	generated, err := auth.GenerateAPIToken()
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.CreateAPIToken(ctx, ownerID, name, generated.Hash, generated.Preview, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("persist api token: %w", err)
	}

	snap := &cache.TokenSnapshot{
		UserID:    token.UserID,
		TokenID:   token.ID,
		IsRevoked: false,
		ExpiresAt: token.ExpiresAt,
	}

	ttl, seed := seedTTL(token.ExpiresAt, s.cacheTTL, time.Now().UTC())
	if seed {
		if err := s.cache.SetTokenSnapshot(ctx, generated.Hash, snap, ttl); err != nil {
			s.logger.Error("failed to seed token snapshot",
				slog.Int64("token_id", token.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("api token issued",
		slog.Int64("token_id", token.ID),
		slog.Int64("user_id", token.UserID),
		slog.String("preview", token.TokenPreview),
	)

	return &IssuedToken{Plaintext: generated.Plaintext, Token: token}, nil
}

// List returns the owner's tokens as secret-free metadata, newest first.
func (s *TokenService) List(ctx context.Context, ownerID int64, limit, offset int) ([]model.APITokenResponse, error) {
	tokens, err := s.tokens.ListAPITokensByUserID(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}

	responses := make([]model.APITokenResponse, 0, len(tokens))
	for _, t := range tokens {
		responses = append(responses, t.ToResponse())
	}
	return responses, nil
}

// Revoke marks the token revoked in the durable store (idempotently),
// then propagates to the cache: a snapshot whose recorded expiry has
// passed is deleted outright, otherwise it is overwritten in place with
// is_revoked set, preserving its remaining TTL. A cache miss here is an
// inconsistency worth logging but not an error - the next validation
// falls through to the durable store and observes the revoked row.
func (s *TokenService) Revoke(ctx context.Context, ownerID, tokenID int64) (*model.APIToken, error) {
	token, err := s.tokens.RevokeAPIToken(ctx, tokenID, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("revoke api token: %w", err)
	}

	s.propagateRevocation(ctx, token)

	s.logger.Info("api token revoked",
		slog.Int64("token_id", token.ID),
		slog.Int64("user_id", token.UserID),
	)

	return token, nil
}

// propagateRevocation updates or evicts the cache entry for a revoked
// token. Best-effort: the durable row is already authoritative and the
// snapshot TTL ceiling bounds any remaining staleness.
func (s *TokenService) propagateRevocation(ctx context.Context, token *model.APIToken) {
	snap, err := s.cache.GetTokenSnapshot(ctx, token.TokenHash)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("revoked token had no cache entry",
				slog.Int64("token_id", token.ID),
			)
			return
		}
		s.logger.Error("failed to read token snapshot during revocation",
			slog.Int64("token_id", token.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if snap.ExpiresAt != nil && !snap.ExpiresAt.After(time.Now().UTC()) {
		if err := s.cache.DeleteTokenSnapshot(ctx, token.TokenHash); err != nil {
			s.logger.Error("failed to delete expired snapshot during revocation",
				slog.Int64("token_id", token.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	snap.IsRevoked = true
	if err := s.cache.UpdateTokenSnapshot(ctx, token.TokenHash, snap); err != nil {
		s.logger.Error("failed to update token snapshot during revocation",
			slog.Int64("token_id", token.ID),
			slog.String("error", err.Error()),
		)
	}
}

// seedTTL computes the cache TTL for a newly issued token: bounded by
// the ceiling and by the time remaining to expiry. Tokens without an
// expiry are cached without TTL (revocation evicts them). Returns
// seed=false when the expiry has already passed.
func seedTTL(expiresAt *time.Time, ceiling time.Duration, now time.Time) (time.Duration, bool) {
	if expiresAt == nil {
		return 0, true
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	if remaining < ceiling {
		return remaining, true
	}
	return ceiling, true
}
