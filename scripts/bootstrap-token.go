// Command bootstrap-token creates a user (if absent) and issues an API
// token for it directly against the database, bypassing the OTP flow.
// Intended for provisioning system accounts and local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tokenportal/tokenportal/internal/auth"
	"github.com/tokenportal/tokenportal/internal/repository"
)

type output struct {
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	TokenID      int64  `json:"token_id"`
	Token        string `json:"token"`
	TokenPreview string `json:"token_preview"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		email       = flag.String("email", "system@tokenportal.local", "Owner email")
		name        = flag.String("name", "bootstrap", "API token name")
		expiresIn   = flag.String("expires-in", "", "Token lifetime as a Go duration (empty = never expires)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	var expiresAt *time.Time
	if *expiresIn != "" {
		d, err := time.ParseDuration(*expiresIn)
		if err != nil || d <= 0 {
			fmt.Fprintln(os.Stderr, "expires-in must be a positive duration, e.g. 720h")
			os.Exit(1)
		}
		t := time.Now().UTC().Add(d)
		expiresAt = &t
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	user, err := repo.GetOrCreateUserByEmail(ctx, strings.ToLower(*email))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ensure user:", err)
		os.Exit(1)
	}

	generated, err := auth.GenerateAPIToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate api token:", err)
		os.Exit(1)
	}

	token, err := repo.CreateAPIToken(ctx, user.ID, *name, generated.Hash, generated.Preview, expiresAt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create api token:", err)
		os.Exit(1)
	}

	out := output{
		UserID:       user.ID,
		Email:        user.Email,
		TokenID:      token.ID,
		Token:        generated.Plaintext,
		TokenPreview: token.TokenPreview,
	}
	if token.ExpiresAt != nil {
		out.ExpiresAt = token.ExpiresAt.UTC().Format(time.RFC3339)
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
