// Package service implements the credential engine: OTP lifecycle,
// API token issuance and management, and the dual-tier validation
// gateway used on every protected request.
package service

import "errors"

// Validation and verification outcomes. These are tagged results, not
// exceptions: callers must handle every variant explicitly. Anything
// else returned by this package is an internal error (store failure)
// and must never be conflated with an invalid credential.
var (
	// ErrInvalidCredential covers wrong, expired or unknown OTPs and
	// unknown session subjects. Deliberately one variant to prevent
	// enumeration attacks.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrTokenNotFound means the presented API token matches no row.
	ErrTokenNotFound = errors.New("api token not found")

	// ErrTokenRevoked means the token exists but has been revoked.
	ErrTokenRevoked = errors.New("api token revoked")

	// ErrTokenExpired means the token exists but its expiry has passed.
	ErrTokenExpired = errors.New("api token expired")

	// ErrInactiveAccount means the credential resolved to a deactivated user.
	ErrInactiveAccount = errors.New("account inactive")
)
