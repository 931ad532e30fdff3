package email

import (
	"context"
	"log/slog"
	"time"
)

// DevSender logs one-time codes instead of sending mail. For local
// development only: the code appears in the process log, so it must
// never be selected in production.
type DevSender struct {
	logger *slog.Logger
}

// NewDevSender creates a Sender that writes codes to the log.
func NewDevSender(logger *slog.Logger) *DevSender {
	return &DevSender{logger: logger}
}

func (s *DevSender) SendOTP(_ context.Context, to, code string, validFor time.Duration) error {
	s.logger.Warn("dev mode: otp not emailed",
		slog.String("to", to),
		slog.String("code", code),
		slog.Duration("valid_for", validFor),
	)
	return nil
}
