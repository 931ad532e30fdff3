package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/model"
	"github.com/tokenportal/tokenportal/internal/repository"
	"github.com/tokenportal/tokenportal/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeValidator struct {
	identity *auth.Identity
	err      error
}

func (f *fakeValidator) Validate(context.Context, string) (*auth.Identity, error) {
	return f.identity, f.err
}

type fakeUsers struct {
	user *model.User
	err  error
}

func (f *fakeUsers) GetUserByID(context.Context, int64) (*model.User, error) {
	return f.user, f.err
}

type fakeUsage struct {
	mu   sync.Mutex
	rows []*model.UsageLog
}

func (f *fakeUsage) CreateUsageLog(_ context.Context, row *model.UsageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeUsage) all() []*model.UsageLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.UsageLog(nil), f.rows...)
}

type fakeLastUsed struct {
	called chan int64
}

func (f *fakeLastUsed) UpdateAPITokenLastUsed(_ context.Context, id int64) error {
	select {
	case f.called <- id:
	default:
	}
	return nil
}

type authFixture struct {
	validator *fakeValidator
	users     *fakeUsers
	usage     *fakeUsage
	lastUsed  *fakeLastUsed
}

func newAuthFixture() *authFixture {
	return &authFixture{
		validator: &fakeValidator{identity: &auth.Identity{UserID: 7, TokenID: 12}},
		users:     &fakeUsers{user: &model.User{ID: 7, Email: "user@example.com", IsActive: true}},
		usage:     &fakeUsage{},
		lastUsed:  &fakeLastUsed{called: make(chan int64, 1)},
	}
}

func (fx *authFixture) handler(next http.Handler) http.Handler {
	return APITokenAuth(APITokenAuthConfig{
		Validator: fx.validator,
		Users:     fx.users,
		Usage:     fx.usage,
		LastUsed:  fx.lastUsed,
		Logger:    discardLogger(),
	})(next)
}

func TestAPITokenAuth_Success(t *testing.T) {
	fx := newAuthFixture()

	var seen *auth.Identity
	h := fx.handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot) // arbitrary downstream status
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/whoami", nil)
	req.Header.Set("X-API-Key", "sk_live_something")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, int64(7), seen.UserID)
	assert.Equal(t, int64(12), seen.TokenID)

	rows := fx.usage.all()
	require.Len(t, rows, 1, "exactly one usage row per request")
	row := rows[0]
	assert.Equal(t, http.StatusTeapot, row.StatusCode, "row records the actual handler status")
	assert.Equal(t, http.MethodGet, row.Method)
	assert.Equal(t, "/api/v1/public/whoami", row.Path)
	assert.Empty(t, row.ErrorMessage)
	require.NotNil(t, row.APITokenID)
	assert.Equal(t, int64(12), *row.APITokenID)
	require.NotNil(t, row.UserID)
	assert.Equal(t, int64(7), *row.UserID)

	select {
	case id := <-fx.lastUsed.called:
		assert.Equal(t, int64(12), id)
	case <-time.After(time.Second):
		t.Fatal("last-used update never ran")
	}
}

func TestAPITokenAuth_MissingToken(t *testing.T) {
	fx := newAuthFixture()

	h := fx.handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not validate credentials")

	rows := fx.usage.all()
	require.Len(t, rows, 1)
	assert.Equal(t, http.StatusUnauthorized, rows[0].StatusCode)
	assert.Equal(t, "API token not provided", rows[0].ErrorMessage)
	assert.Nil(t, rows[0].APITokenID)
}

func TestAPITokenAuth_FailureStatuses(t *testing.T) {
	resolved := &auth.Identity{UserID: 7, TokenID: 12}

	tests := []struct {
		name       string
		identity   *auth.Identity
		err        error
		wantStatus int
		wantCause  string
	}{
		// Revoked and expired tokens are identifiable: the validator
		// resolves them before rejecting, and the row must name them.
		{"not found", nil, service.ErrTokenNotFound, http.StatusUnauthorized, "invalid API token"},
		{"revoked", resolved, service.ErrTokenRevoked, http.StatusForbidden, "API token has been revoked"},
		{"expired", resolved, service.ErrTokenExpired, http.StatusForbidden, "API token has expired"},
		{"internal", nil, errors.New("pg down"), http.StatusInternalServerError, "internal error during token validation"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			fx := newAuthFixture()
			fx.validator.identity = tt.identity
			fx.validator.err = tt.err

			h := fx.handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("Authorization", "Bearer sk_live_whatever")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			// The response never carries the root cause.
			assert.NotContains(t, rec.Body.String(), tt.wantCause)

			rows := fx.usage.all()
			require.Len(t, rows, 1)
			assert.Equal(t, tt.wantStatus, rows[0].StatusCode)
			assert.Equal(t, tt.wantCause, rows[0].ErrorMessage)

			if tt.identity == nil {
				assert.Nil(t, rows[0].APITokenID)
				assert.Nil(t, rows[0].UserID)
			} else {
				require.NotNil(t, rows[0].APITokenID)
				assert.Equal(t, tt.identity.TokenID, *rows[0].APITokenID)
				require.NotNil(t, rows[0].UserID)
				assert.Equal(t, tt.identity.UserID, *rows[0].UserID)
			}
		})
	}
}

func TestAPITokenAuth_PanicStillWritesUsageRow(t *testing.T) {
	fx := newAuthFixture()

	h := Recoverer(discardLogger())(fx.handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/whoami", nil)
	req.Header.Set("X-API-Key", "sk_live_something")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rows := fx.usage.all()
	require.Len(t, rows, 1, "the usage row must survive a downstream panic")
	assert.Equal(t, http.StatusInternalServerError, rows[0].StatusCode)
	require.NotNil(t, rows[0].APITokenID)
	assert.Equal(t, int64(12), *rows[0].APITokenID)

	select {
	case id := <-fx.lastUsed.called:
		assert.Equal(t, int64(12), id)
	case <-time.After(time.Second):
		t.Fatal("last-used update never ran")
	}
}

func TestAPITokenAuth_PanicAfterHeaderKeepsWrittenStatus(t *testing.T) {
	fx := newAuthFixture()

	h := Recoverer(discardLogger())(fx.handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("after header")
	})))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "sk_live_something")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	rows := fx.usage.all()
	require.Len(t, rows, 1)
	assert.Equal(t, http.StatusAccepted, rows[0].StatusCode,
		"a header written before the panic is what the client saw")
}

func TestAPITokenAuth_SilentHandlerRecords200(t *testing.T) {
	fx := newAuthFixture()

	h := fx.handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		// Writes neither header nor body; net/http sends a 200.
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "sk_live_something")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	rows := fx.usage.all()
	require.Len(t, rows, 1)
	assert.Equal(t, http.StatusOK, rows[0].StatusCode)
}

func TestAPITokenAuth_InactiveUser(t *testing.T) {
	fx := newAuthFixture()
	fx.users.user.IsActive = false

	h := fx.handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "sk_live_whatever")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	rows := fx.usage.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "user account is inactive", rows[0].ErrorMessage)
	require.NotNil(t, rows[0].APITokenID, "identity was resolved, so the row keeps it")
	assert.Equal(t, int64(12), *rows[0].APITokenID)
}

func TestAPITokenAuth_OwnerGone(t *testing.T) {
	fx := newAuthFixture()
	fx.users.user = nil
	fx.users.err = repository.ErrUserNotFound

	h := fx.handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "sk_live_whatever")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractAPIToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		apiKey string
		bearer string
		want   string
	}{
		{"x-api-key only", "sk_live_a", "", "sk_live_a"},
		{"bearer only", "", "sk_live_b", "sk_live_b"},
		{"x-api-key wins over bearer", "sk_live_a", "sk_live_b", "sk_live_a"},
		{"neither", "", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}

			if got := extractAPIToken(req); got != tt.want {
				t.Errorf("extractAPIToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractAPIToken_NonBearerAuthorization(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	if got := extractAPIToken(req); got != "" {
		t.Errorf("extractAPIToken = %q, want empty for non-bearer scheme", got)
	}
}

func TestAPITokenAuth_ResponseIsGenericJSON(t *testing.T) {
	fx := newAuthFixture()
	fx.validator.identity = nil
	fx.validator.err = service.ErrTokenRevoked

	h := fx.handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "sk_live_whatever")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), "Could not validate credentials"))
}
