package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/repository"
)

// SessionAuthConfig holds the dependencies of the session middleware.
type SessionAuthConfig struct {
	Signer *auth.SessionSigner
	Users  UserGetter
	Logger *slog.Logger
}

// SessionAuth returns a middleware that guards token-management
// endpoints with a session JWT from the Authorization header. The user
// is reloaded on every request so deactivation takes effect before the
// JWT expires. Every failure gets the same generic message.
func SessionAuth(cfg SessionAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				cfg.deny(w, r, http.StatusUnauthorized, "session token not provided")
				return
			}

			claims, err := cfg.Signer.Verify(raw)
			if err != nil {
				cfg.deny(w, r, http.StatusUnauthorized, "invalid session token")
				return
			}

			user, err := cfg.Users.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					cfg.deny(w, r, http.StatusUnauthorized, "session subject not found")
					return
				}
				cfg.Logger.Error("session user lookup failed",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.Int64("user_id", claims.UserID),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusInternalServerError, internalErrorBody)
				return
			}

			if !user.IsActive {
				cfg.deny(w, r, http.StatusForbidden, "user account is inactive")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.ContextWithSessionUser(r.Context(), user)))
		})
	}
}

func (cfg SessionAuthConfig) deny(w http.ResponseWriter, r *http.Request, status int, cause string) {
	cfg.Logger.Warn("session rejected",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("reason", cause),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
	)
	writeError(w, status, credentialErrorBody)
}

// extractBearer pulls a bearer token from the Authorization header.
func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
