package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/cache"
	"github.com/tokenportal/tokenportal/internal/email"
	"github.com/tokenportal/tokenportal/internal/model"
	"github.com/tokenportal/tokenportal/internal/repository"
)

// UserStore is the durable user access the OTP flow needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetOrCreateUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// OTPService orchestrates the one-time-password flow: user bootstrap,
// code generation and storage, email dispatch, single-use verification
// and session JWT issuance.
//
// Neither requests nor verification attempts are rate limited here; a
// 5-digit code inside its TTL window is brute-forceable against a fast
// cache, so deployments should front these endpoints with a limiter.
type OTPService struct {
	users      UserStore
	cache      *cache.Cache
	sender     email.Sender
	signer     *auth.SessionSigner
	logger     *slog.Logger
	codeLength int
	ttl        time.Duration
}

// NewOTPService creates an OTPService.
func NewOTPService(users UserStore, c *cache.Cache, sender email.Sender, signer *auth.SessionSigner, logger *slog.Logger, codeLength int, ttl time.Duration) *OTPService {
	return &OTPService{
		users:      users,
		cache:      c,
		sender:     sender,
		signer:     signer,
		logger:     logger,
		codeLength: codeLength,
		ttl:        ttl,
	}
}

// RequestOTP generates a fresh one-time code for the email, stores its
// digest with the configured TTL (overwriting any prior pending code)
// and dispatches the plaintext by email. The user is created on first
// request, so success reveals nothing about prior registration.
//
// If dispatch fails, the just-written entry is deleted so no orphaned
// pending code remains.
func (s *OTPService) RequestOTP(ctx context.Context, emailAddr string) error {
	user, err := s.users.GetOrCreateUserByEmail(ctx, emailAddr)
	if err != nil {
		return fmt.Errorf("get or create user: %w", err)
	}

	code, err := auth.GenerateOTPCode(s.codeLength)
	if err != nil {
		return err
	}

	if err := s.cache.SetOTP(ctx, user.Email, auth.HashSecret(code), s.ttl); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if err := s.sender.SendOTP(ctx, user.Email, code, s.ttl); err != nil {
		if delErr := s.cache.DeleteOTP(ctx, user.Email); delErr != nil {
			s.logger.Error("failed to clean up otp after dispatch failure",
				slog.String("error", delErr.Error()),
			)
		}
		return fmt.Errorf("dispatch otp email: %w", err)
	}

	s.logger.Info("otp requested", slog.Int64("user_id", user.ID))
	return nil
}

// VerifyOTP checks the supplied code against the pending entry and, on
// match, consumes it and mints a session JWT carrying the user's email,
// id and role. Every failure branch (unknown email, absent or expired
// entry, mismatched code) returns ErrInvalidCredential; the transport
// layer must surface one identical message for all of them.
//
// The ephemeral entry is deleted strictly before the JWT is signed, so
// a concurrent duplicate verification observes the entry already gone.
func (s *OTPService) VerifyOTP(ctx context.Context, emailAddr, code string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredential
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	stored, err := s.cache.GetOTP(ctx, user.Email)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			// Expired, consumed or never requested - indistinguishable.
			return "", ErrInvalidCredential
		}
		return "", fmt.Errorf("fetch otp: %w", err)
	}

	if !auth.SecretsEqual(auth.HashSecret(code), stored) {
		return "", ErrInvalidCredential
	}

	// Single-use: consume before signing.
	if err := s.cache.DeleteOTP(ctx, user.Email); err != nil {
		return "", fmt.Errorf("consume otp: %w", err)
	}

	token, err := s.signer.Sign(user.Email, user.ID, user.Role)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	s.logger.Info("otp verified, session issued", slog.Int64("user_id", user.ID))
	return token, nil
}
