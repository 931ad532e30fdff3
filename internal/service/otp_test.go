package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/cache"
	"github.com/tokenportal/tokenportal/internal/model"
	"github.com/tokenportal/tokenportal/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := cache.New(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

// fakeUserStore is an in-memory UserStore.
type fakeUserStore struct {
	users  map[string]*model.User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetOrCreateUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	u := &model.User{ID: f.nextID, Email: email, Role: model.RoleUser, IsActive: true}
	f.nextID++
	f.users[email] = u
	return u, nil
}

// captureSender records dispatched codes instead of sending mail.
type captureSender struct {
	lastTo   string
	lastCode string
	fail     error
}

func (s *captureSender) SendOTP(_ context.Context, to, code string, _ time.Duration) error {
	if s.fail != nil {
		return s.fail
	}
	s.lastTo = to
	s.lastCode = code
	return nil
}

func newOTPService(t *testing.T) (*OTPService, *fakeUserStore, *captureSender, *cache.Cache, *auth.SessionSigner) {
	t.Helper()

	c, _ := newTestCache(t)
	users := newFakeUserStore()
	sender := &captureSender{}
	signer := auth.NewSessionSigner("test-secret", time.Hour)
	svc := NewOTPService(users, c, sender, signer, discardLogger(), 5, 5*time.Minute)

	return svc, users, sender, c, signer
}

func TestRequestOTP_StoresDigestAndDispatches(t *testing.T) {
	svc, users, sender, c, _ := newOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestOTP(ctx, "user@example.com"))

	// User bootstrapped on first request.
	_, err := users.GetUserByEmail(ctx, "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", sender.lastTo)
	assert.Len(t, sender.lastCode, 5)

	stored, err := c.GetOTP(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.HashSecret(sender.lastCode), stored,
		"cache must hold the digest, not the plaintext code")
}

func TestRequestOTP_SecondRequestInvalidatesFirstCode(t *testing.T) {
	svc, _, sender, _, _ := newOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestOTP(ctx, "user@example.com"))
	first := sender.lastCode

	require.NoError(t, svc.RequestOTP(ctx, "user@example.com"))
	second := sender.lastCode

	if first != second {
		_, err := svc.VerifyOTP(ctx, "user@example.com", first)
		assert.ErrorIs(t, err, ErrInvalidCredential, "stale code must not verify")
	}

	token, err := svc.VerifyOTP(ctx, "user@example.com", second)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestRequestOTP_DispatchFailureCleansUp(t *testing.T) {
	svc, _, sender, c, _ := newOTPService(t)
	ctx := context.Background()

	sender.fail = errors.New("smtp down")
	err := svc.RequestOTP(ctx, "user@example.com")
	require.Error(t, err)

	_, err = c.GetOTP(ctx, "user@example.com")
	assert.ErrorIs(t, err, cache.ErrCacheMiss, "no pending code may survive a dispatch failure")
}

func TestVerifyOTP_MintsSessionJWT(t *testing.T) {
	svc, users, sender, _, signer := newOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestOTP(ctx, "user@example.com"))

	token, err := svc.VerifyOTP(ctx, "user@example.com", sender.lastCode)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Subject)

	user, err := users.GetUserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Role, claims.Role)
}

func TestVerifyOTP_SingleUse(t *testing.T) {
	svc, _, sender, _, _ := newOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestOTP(ctx, "user@example.com"))
	code := sender.lastCode

	_, err := svc.VerifyOTP(ctx, "user@example.com", code)
	require.NoError(t, err)

	_, err = svc.VerifyOTP(ctx, "user@example.com", code)
	assert.ErrorIs(t, err, ErrInvalidCredential, "a consumed code must not verify again")
}

func TestVerifyOTP_WrongCodeLeavesEntryIntact(t *testing.T) {
	svc, _, sender, _, _ := newOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestOTP(ctx, "user@example.com"))

	_, err := svc.VerifyOTP(ctx, "user@example.com", "00000")
	if sender.lastCode == "00000" {
		t.Skip("generated code collided with the wrong-guess fixture")
	}
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// The pending entry survives a failed attempt.
	token, err := svc.VerifyOTP(ctx, "user@example.com", sender.lastCode)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestVerifyOTP_UnknownEmail(t *testing.T) {
	svc, _, _, _, _ := newOTPService(t)

	_, err := svc.VerifyOTP(context.Background(), "nobody@example.com", "12345")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyOTP_ExpiredCode(t *testing.T) {
	c, mr := newTestCache(t)
	users := newFakeUserStore()
	sender := &captureSender{}
	signer := auth.NewSessionSigner("test-secret", time.Hour)
	svc := NewOTPService(users, c, sender, signer, discardLogger(), 5, time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.RequestOTP(ctx, "user@example.com"))
	mr.FastForward(2 * time.Minute)

	_, err := svc.VerifyOTP(ctx, "user@example.com", sender.lastCode)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
