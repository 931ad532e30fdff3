package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/model"
	"github.com/tokenportal/tokenportal/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// TokenHandler handles API token management endpoints. All routes are
// session-JWT protected; the acting user comes from the request context.
type TokenHandler struct {
	tokens *service.TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(tokens *service.TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, logger: logger}
}

// CreateToken handles POST /api/v1/tokens
func (h *TokenHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	user := auth.SessionUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req model.APITokenCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now().UTC()) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "expires_at must be in the future")
		return
	}

	issued, err := h.tokens.Issue(r.Context(), user.ID, req.Name, req.ExpiresAt)
	if err != nil {
		h.logger.Error("failed to issue api token",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create API token")
		return
	}

	// The plaintext appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, model.APITokenCreateResponse{
		ID:           issued.Token.ID,
		Name:         issued.Token.Name,
		Token:        issued.Plaintext,
		TokenPreview: issued.Token.TokenPreview,
		ExpiresAt:    issued.Token.ExpiresAt,
		CreatedAt:    issued.Token.CreatedAt,
	})
}

// ListTokens handles GET /api/v1/tokens
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	user := auth.SessionUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	limit, offset := pagination(r)
	tokens, err := h.tokens.List(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list api tokens",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list API tokens")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

// RevokeToken handles DELETE /api/v1/tokens/{token_id}
func (h *TokenHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	user := auth.SessionUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	tokenID, err := strconv.ParseInt(chi.URLParam(r, "token_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token ID must be an integer")
		return
	}

	token, err := h.tokens.Revoke(r.Context(), user.ID, tokenID)
	if err != nil {
		if errors.Is(err, service.ErrTokenNotFound) {
			// Also covers tokens owned by someone else, to prevent enumeration.
			writeError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "API token not found")
			return
		}
		h.logger.Error("failed to revoke api token",
			slog.Int64("user_id", user.ID),
			slog.Int64("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke API token")
		return
	}

	writeJSON(w, http.StatusOK, token.ToResponse())
}

// pagination parses limit/offset query parameters with sane bounds.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
