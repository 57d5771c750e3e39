package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/majidsafwaan2/gymguard/internal/config"
	"github.com/majidsafwaan2/gymguard/internal/domain"
	"github.com/majidsafwaan2/gymguard/internal/password"
	"github.com/majidsafwaan2/gymguard/internal/repository"
)

// adminBirthDate keeps the seeded admin unambiguously adult for every age
// threshold the policy can be configured with.
var adminBirthDate = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

// EnsureAdmin creates a default admin identity for dev/e2e if missing.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, identities repository.IdentityRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, identities, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, identities repository.IdentityRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		if logger != nil {
			logger.Info("admin bootstrap skipped, no credentials configured")
		}
		return nil
	}

	if _, err := identities.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrIdentityNotFound) {
		return fmt.Errorf("bootstrap lookup identity: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	identity := domain.Identity{
		ID:           node.Generate().Int64(),
		Email:        email,
		PasswordHash: hashed,
		FirstName:    "Admin",
		LastName:     "Account",
		Category:     domain.CategoryAdmin,
		DateOfBirth:  adminBirthDate,
		Active:       true,
	}

	created, err := identities.Create(ctx, identity)
	if err != nil {
		return fmt.Errorf("bootstrap create identity: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap admin identity created",
			zap.String("email", created.Email),
			zap.Int64("identity_id", created.ID),
		)
	}
	return nil
}
