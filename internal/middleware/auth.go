package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/model"
	"github.com/tokenportal/tokenportal/internal/repository"
	"github.com/tokenportal/tokenportal/internal/service"
)

// credentialErrorBody is the one external message for every credential
// failure, regardless of root cause, to prevent enumeration. The root
// cause is recorded in the usage log, never in the response.
const credentialErrorBody = `{"error":{"code":"INVALID_CREDENTIALS","message":"Could not validate credentials"}}`

const internalErrorBody = `{"error":{"code":"INTERNAL","message":"Internal server error"}}`

// TokenValidator resolves a presented plaintext API token to an identity.
type TokenValidator interface {
	Validate(ctx context.Context, plaintext string) (*auth.Identity, error)
}

// UserGetter loads the owner of a resolved credential.
type UserGetter interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// UsageRecorder appends one audit row per authenticated request.
type UsageRecorder interface {
	CreateUsageLog(ctx context.Context, log *model.UsageLog) error
}

// LastUsedUpdater stamps the token's last-used time.
type LastUsedUpdater interface {
	UpdateAPITokenLastUsed(ctx context.Context, id int64) error
}

// APITokenAuthConfig holds the dependencies of the API token middleware.
type APITokenAuthConfig struct {
	Validator TokenValidator
	Users     UserGetter
	Usage     UsageRecorder
	LastUsed  LastUsedUpdater
	Logger    *slog.Logger
}

// APITokenAuth returns a middleware that authenticates requests by API
// token and writes exactly one usage-log row per request, success or
// failure. On success the row carries the status the downstream handler
// actually produced; on failure it carries the rejection status and the
// root cause, which is never surfaced to the caller. The row is written
// even when the handler panics out from under the middleware.
func APITokenAuth(cfg APITokenAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plaintext := extractAPIToken(r)
			if plaintext == "" {
				cfg.reject(w, r, http.StatusUnauthorized, "API token not provided", nil)
				return
			}

			identity, err := cfg.Validator.Validate(r.Context(), plaintext)
			if err != nil {
				// Revoked and expired verdicts still carry the resolved
				// identity; the audit row must name the dead token.
				switch {
				case errors.Is(err, service.ErrTokenNotFound):
					cfg.reject(w, r, http.StatusUnauthorized, "invalid API token", nil)
				case errors.Is(err, service.ErrTokenRevoked):
					cfg.reject(w, r, http.StatusForbidden, "API token has been revoked", identity)
				case errors.Is(err, service.ErrTokenExpired):
					cfg.reject(w, r, http.StatusForbidden, "API token has expired", identity)
				default:
					cfg.Logger.Error("token validation failed",
						slog.String("request_id", GetRequestID(r.Context())),
						slog.String("error", err.Error()),
					)
					cfg.fail(w, r, "internal error during token validation")
				}
				return
			}

			user, err := cfg.Users.GetUserByID(r.Context(), identity.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					cfg.reject(w, r, http.StatusUnauthorized, "token owner not found", identity)
					return
				}
				cfg.Logger.Error("token owner lookup failed",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.Int64("user_id", identity.UserID),
					slog.String("error", err.Error()),
				)
				cfg.fail(w, r, "internal error during owner lookup")
				return
			}

			if !user.IsActive {
				cfg.reject(w, r, http.StatusForbidden, "user account is inactive", identity)
				return
			}

			wrapped := wrapResponseWriter(w)

			// A single deferred exit point owns all post-auth
			// bookkeeping, so the usage row and the last-used stamp
			// survive a downstream panic. A panic that unwinds before
			// the handler wrote a header records as a 500.
			panicked := true
			defer func() {
				status := wrapped.status
				if panicked && !wrapped.wroteHeader {
					status = http.StatusInternalServerError
				}
				cfg.record(r, status, "", identity)
				cfg.stampLastUsed(r.Context(), identity.TokenID)
			}()

			next.ServeHTTP(wrapped, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
			panicked = false
		})
	}
}

// reject writes the generic credential-failure response and records the
// rejection in the usage log with its real cause.
func (cfg APITokenAuthConfig) reject(w http.ResponseWriter, r *http.Request, status int, cause string, identity *auth.Identity) {
	cfg.Logger.Warn("api token rejected",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("reason", cause),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
	)
	writeError(w, status, credentialErrorBody)
	cfg.record(r, status, cause, identity)
}

// fail writes a 500 and records it; the detail stays internal.
func (cfg APITokenAuthConfig) fail(w http.ResponseWriter, r *http.Request, cause string) {
	writeError(w, http.StatusInternalServerError, internalErrorBody)
	cfg.record(r, http.StatusInternalServerError, cause, nil)
}

// stampLastUsed updates the token's last-used time in the background.
// Best-effort; the stamp is informational and must not delay or fail
// the request.
func (cfg APITokenAuthConfig) stampLastUsed(ctx context.Context, tokenID int64) {
	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := cfg.LastUsed.UpdateAPITokenLastUsed(ctx, tokenID); err != nil {
			cfg.Logger.Warn("failed to update token last-used",
				slog.Int64("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx))
}

// record appends the usage-log row. A write failure is logged and
// swallowed: auditing must never take down request handling. The write
// uses a detached context so it completes even if the client is gone.
func (cfg APITokenAuthConfig) record(r *http.Request, status int, errMsg string, identity *auth.Identity) {
	row := &model.UsageLog{
		Method:       r.Method,
		Path:         r.URL.Path,
		StatusCode:   status,
		ClientIP:     r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		ErrorMessage: errMsg,
	}
	if identity != nil {
		row.APITokenID = &identity.TokenID
		row.UserID = &identity.UserID
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := cfg.Usage.CreateUsageLog(ctx, row); err != nil {
		cfg.Logger.Error("failed to write usage log",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// extractAPIToken pulls the API token from the request. X-API-Key wins
// when both headers are present; Authorization: Bearer is the fallback.
func extractAPIToken(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
