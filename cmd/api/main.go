// Package main is the entrypoint for the Token Portal API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/cache"
	"github.com/tokenportal/tokenportal/internal/config"
	"github.com/tokenportal/tokenportal/internal/email"
	"github.com/tokenportal/tokenportal/internal/handler"
	"github.com/tokenportal/tokenportal/internal/middleware"
	"github.com/tokenportal/tokenportal/internal/repository"
	"github.com/tokenportal/tokenportal/internal/server"
	"github.com/tokenportal/tokenportal/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	sender, err := buildSender(cfg, logger)
	if err != nil {
		logger.Error("failed to configure email sender", slog.String("error", err.Error()))
		os.Exit(1)
	}

	signer := auth.NewSessionSigner(cfg.JWTSecret, cfg.JWTExpiresIn)

	otpService := service.NewOTPService(repo, cacheClient, sender, signer, logger, cfg.OTPLength, cfg.OTPExpiresIn)
	tokenService := service.NewTokenService(repo, cacheClient, logger, cfg.TokenCacheTTL)
	validator := service.NewValidator(repo, cacheClient, logger, cfg.TokenCacheTTL)

	authHandler := handler.NewAuthHandler(otpService, logger)
	tokenHandler := handler.NewTokenHandler(tokenService, logger)
	healthHandler := handler.NewHealthHandler(repo, cacheClient)

	r := setupRouter(authHandler, tokenHandler, healthHandler, validator, repo, signer, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// LIFO: cache closes before the pool.
	srv.OnShutdown("postgres pool", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis client", func(context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildSender picks the OTP dispatch transport. SMTP when configured;
// in development an unconfigured SMTP falls back to the log sender.
func buildSender(cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	if cfg.SMTPHost == "" && cfg.IsDevelopment() {
		logger.Warn("SMTP not configured, one-time codes will be logged")
		return email.NewDevSender(logger), nil
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
	})
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	authHandler *handler.AuthHandler,
	tokenHandler *handler.TokenHandler,
	healthHandler *handler.HealthHandler,
	validator *service.Validator,
	repo *repository.Repository,
	signer *auth.SessionSigner,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		// OTP bootstrap (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/request-otp", authHandler.RequestOTP)
			r.Post("/verify-otp", authHandler.VerifyOTP)
		})

		// Token management (session JWT)
		r.Route("/tokens", func(r chi.Router) {
			r.Use(middleware.SessionAuth(middleware.SessionAuthConfig{
				Signer: signer,
				Users:  repo,
				Logger: logger,
			}))
			r.Post("/", tokenHandler.CreateToken)
			r.Get("/", tokenHandler.ListTokens)
			r.Delete("/{token_id}", tokenHandler.RevokeToken)
		})

		// API-token-protected surface (validation gateway + usage log)
		r.Route("/public", func(r chi.Router) {
			r.Use(middleware.APITokenAuth(middleware.APITokenAuthConfig{
				Validator: validator,
				Users:     repo,
				Usage:     repo,
				LastUsed:  repo,
				Logger:    logger,
			}))
			r.Get("/whoami", handler.Whoami)
		})
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
