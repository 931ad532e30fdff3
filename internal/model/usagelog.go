package model

import "time"

// UsageLog is an append-only audit record of one inbound request against
// a (possibly invalid) API token. Token and user references are nil when
// the presented token could not be identified.
type UsageLog struct {
	ID           int64     `json:"id"`
	RequestedAt  time.Time `json:"requested_at"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	StatusCode   int       `json:"status_code"`
	ClientIP     string    `json:"client_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	APITokenID   *int64    `json:"api_token_id,omitempty"`
	UserID       *int64    `json:"user_id,omitempty"`
}
