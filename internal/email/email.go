// Package email provides OTP email dispatch. The transport is an
// interface so tests and alternative providers can swap it out.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Sender delivers one-time codes to users. Implementations must not log
// or persist the plaintext code.
type Sender interface {
	SendOTP(ctx context.Context, to, code string, validFor time.Duration) error
}

// SMTPConfig holds the SMTP transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// SMTPSender sends OTP emails over SMTP with STARTTLS.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a Sender backed by an SMTP relay.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp configuration incomplete")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// SendOTP delivers the one-time code. The ctx deadline is honored only
// coarsely: net/smtp has no per-operation context, so we check before
// dialing.
func (s *SMTPSender) SendOTP(ctx context.Context, to, code string, validFor time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildOTPMessage(s.cfg.From, s.cfg.FromName, to, code, validFor)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	return nil
}

// buildOTPMessage renders the RFC 5322 message body for an OTP email.
func buildOTPMessage(from, fromName, to, code string, validFor time.Duration) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", fromName, from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Your one-time password\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Hi,\r\n\r\nYour one-time password is: %s\r\n\r\n", code)
	fmt.Fprintf(&b, "It is valid for %d minutes. If you did not request this, ignore this email.\r\n", int(validFor.Minutes()))
	return []byte(b.String())
}
