package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tokenportal/tokenportal/internal/model"
)

// Common errors for API token repository operations.
var (
	ErrTokenNotFound = errors.New("API token not found")
)

const tokenColumns = "id, user_id, name, token_hash, token_preview, expires_at, last_used_at, is_revoked, created_at, updated_at"

// CreateAPIToken inserts a new API token and returns the stored row with
// its database-assigned id and timestamps.
func (r *Repository) CreateAPIToken(ctx context.Context, userID int64, name, tokenHash, tokenPreview string, expiresAt *time.Time) (*model.APIToken, error) {
	query := `
		INSERT INTO api_tokens (user_id, name, token_hash, token_preview, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + tokenColumns

	token, err := scanAPIToken(r.pool.QueryRow(ctx, query, userID, name, tokenHash, tokenPreview, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create API token: %w", err)
	}

	return token, nil
}

// GetAPITokenByID retrieves a token by id, scoped to its owner.
func (r *Repository) GetAPITokenByID(ctx context.Context, id, userID int64) (*model.APIToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE id = $1 AND user_id = $2`

	token, err := scanAPIToken(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get API token by ID: %w", err)
	}

	return token, nil
}

// GetAPITokenByHash retrieves a token by its digest. This is the durable
// lookup used by the validation gateway on a cache miss; token_hash is
// unique and indexed.
func (r *Repository) GetAPITokenByHash(ctx context.Context, tokenHash string) (*model.APIToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE token_hash = $1`

	token, err := scanAPIToken(r.pool.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get API token by hash: %w", err)
	}

	return token, nil
}

// ListAPITokensByUserID retrieves a user's tokens, newest first.
func (r *Repository) ListAPITokensByUserID(ctx context.Context, userID int64, limit, offset int) ([]*model.APIToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list API tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*model.APIToken
	for rows.Next() {
		token, err := scanAPIToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API tokens: %w", err)
	}

	return tokens, nil
}

// RevokeAPIToken marks a token revoked and returns the updated row.
// Revocation is idempotent and monotonic: revoking an already-revoked
// token is a no-op that returns the row unchanged.
func (r *Repository) RevokeAPIToken(ctx context.Context, id, userID int64) (*model.APIToken, error) {
	query := `
		UPDATE api_tokens
		SET is_revoked = TRUE, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND NOT is_revoked
		RETURNING ` + tokenColumns

	token, err := scanAPIToken(r.pool.QueryRow(ctx, query, id, userID))
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to revoke API token: %w", err)
	}

	// Either absent or already revoked; return the unchanged row if it exists.
	return r.GetAPITokenByID(ctx, id, userID)
}

// UpdateAPITokenLastUsed updates the last_used_at timestamp.
// Best-effort: called asynchronously after successful authentication.
func (r *Repository) UpdateAPITokenLastUsed(ctx context.Context, id int64) error {
	query := `
		UPDATE api_tokens
		SET last_used_at = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update API token last used: %w", err)
	}

	return nil
}

// scanAPIToken scans a single row into an APIToken model.
func scanAPIToken(row pgx.Row) (*model.APIToken, error) {
	var token model.APIToken
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Name,
		&token.TokenHash,
		&token.TokenPreview,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.IsRevoked,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &token, nil
}
