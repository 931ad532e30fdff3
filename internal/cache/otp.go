package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// otpKeyPrefix is the Redis key prefix for pending OTP hashes.
// The full key format "otp:<email>" is part of the wire contract with
// cache inspection tooling.
const otpKeyPrefix = "otp:"

func otpKey(email string) string {
	return otpKeyPrefix + email
}

// SetOTP stores the digest of a pending one-time code for an email,
// overwriting any prior pending code. The entry expires after ttl.
func (c *Cache) SetOTP(ctx context.Context, email, digest string, ttl time.Duration) error {
	if err := c.client.Set(ctx, otpKey(email), digest, ttl).Err(); err != nil {
		return fmt.Errorf("set otp entry: %w", err)
	}
	return nil
}

// GetOTP retrieves the stored OTP digest for an email.
// Returns ErrCacheMiss when no code is pending (never requested, already
// consumed, or expired - callers must not distinguish these).
func (c *Cache) GetOTP(ctx context.Context, email string) (string, error) {
	digest, err := c.client.Get(ctx, otpKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("get otp entry: %w", err)
	}
	return digest, nil
}

// DeleteOTP removes the pending OTP for an email. Deleting an absent
// entry is not an error.
func (c *Cache) DeleteOTP(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, otpKey(email)).Err(); err != nil {
		return fmt.Errorf("delete otp entry: %w", err)
	}
	return nil
}
