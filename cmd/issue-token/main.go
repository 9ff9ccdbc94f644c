// Command issue-token mints an access token for local development and smoke tests.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/service"
	"github.com/noah-isme/campus-tutoring-api/pkg/config"
	"github.com/noah-isme/campus-tutoring-api/pkg/logger"
)

func main() {
	var (
		userID   string
		role     string
		fullName string
		ttl      time.Duration
	)
	flag.StringVar(&userID, "user", "", "User ID placed in the token")
	flag.StringVar(&role, "role", string(models.RoleStudent), "ADMIN, TUTOR or STUDENT")
	flag.StringVar(&fullName, "name", "", "Optional display name")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_EXPIRATION)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if ttl <= 0 {
		ttl = cfg.JWT.Expiration
	}
	auth := service.NewAuthService(nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: ttl,
		Issuer:            cfg.JWT.Issuer,
	})

	token, err := auth.IssueToken(service.IssueTokenRequest{
		UserID:   userID,
		Role:     models.UserRole(strings.ToUpper(role)),
		FullName: fullName,
	})
	if err != nil {
		logr.Sugar().Fatalw("issue token failed", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(token); err != nil {
		logr.Sugar().Fatalw("write token failed", "error", err)
	}
}
