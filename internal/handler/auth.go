package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/tokenportal/tokenportal/internal/service"
)

// invalidCredentialMessage is the one message returned for every OTP
// verification failure, whatever the root cause.
const invalidCredentialMessage = "Invalid email or one-time code"

// AuthHandler handles the OTP bootstrap endpoints.
type AuthHandler struct {
	otp    *service.OTPService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(otp *service.OTPService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{otp: otp, logger: logger}
}

type requestOTPRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type sessionTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// RequestOTP handles POST /api/v1/auth/request-otp
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "A valid email address is required")
		return
	}

	if err := h.otp.RequestOTP(r.Context(), email); err != nil {
		h.logger.Error("failed to request otp", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to send one-time code")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "One-time code sent",
	})
}

// VerifyOTP handles POST /api/v1/auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email, ok := normalizeEmail(req.Email)
	if !ok || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and one-time code are required")
		return
	}

	token, err := h.otp.VerifyOTP(r.Context(), email, req.OTP)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredential) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", invalidCredentialMessage)
			return
		}
		h.logger.Error("failed to verify otp", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to verify one-time code")
		return
	}

	writeJSON(w, http.StatusOK, sessionTokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// normalizeEmail lowercases and validates an email address.
func normalizeEmail(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", false
	}
	return s, true
}
