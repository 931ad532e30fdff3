package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tokenportal/tokenportal/internal/model"
)

const usageLogColumns = "id, requested_at, method, path, status_code, client_ip, user_agent, error_message, api_token_id, user_id"

// CreateUsageLog appends one audit record. Rows are immutable once
// written; there is no update path.
func (r *Repository) CreateUsageLog(ctx context.Context, log *model.UsageLog) error {
	query := `
		INSERT INTO api_usage_logs (method, path, status_code, client_ip, user_agent, error_message, api_token_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		log.Method,
		log.Path,
		log.StatusCode,
		log.ClientIP,
		log.UserAgent,
		log.ErrorMessage,
		log.APITokenID,
		log.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to create usage log: %w", err)
	}

	return nil
}

// ListUsageLogs retrieves usage logs, newest first, with pagination.
func (r *Repository) ListUsageLogs(ctx context.Context, limit, offset int) ([]*model.UsageLog, error) {
	query := `
		SELECT ` + usageLogColumns + `
		FROM api_usage_logs
		ORDER BY requested_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.UsageLog
	for rows.Next() {
		log, err := scanUsageLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage logs: %w", err)
	}

	return logs, nil
}

// scanUsageLog scans a single row into a UsageLog model.
func scanUsageLog(row pgx.Row) (*model.UsageLog, error) {
	var log model.UsageLog
	err := row.Scan(
		&log.ID,
		&log.RequestedAt,
		&log.Method,
		&log.Path,
		&log.StatusCode,
		&log.ClientIP,
		&log.UserAgent,
		&log.ErrorMessage,
		&log.APITokenID,
		&log.UserID,
	)
	if err != nil {
		return nil, err
	}
	return &log, nil
}
