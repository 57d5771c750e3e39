// Package identity maps verified credential claims to persisted identities.
package identity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/majidsafwaan2/gymguard/internal/domain"
	"github.com/majidsafwaan2/gymguard/internal/repository"
)

// Resolver owns the only database lookups in the authorization core.
type Resolver struct {
	identities repository.IdentityRepository
	logger     *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(identities repository.IdentityRepository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.L()
	}
	return &Resolver{identities: identities, logger: logger}
}

// Resolve maps a claim set to its identity. Local claims look up by subject
// id; federated claims look up by external provider UID. Exactly one path
// per kind, never falling through to the other.
func (r *Resolver) Resolve(ctx context.Context, claims *domain.ClaimSet) (domain.Identity, error) {
	if claims == nil {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}

	var (
		identity domain.Identity
		err      error
	)
	switch claims.Kind {
	case domain.TokenKindAccess, domain.TokenKindRefresh:
		var id int64
		id, err = strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("%w: malformed subject", domain.ErrIdentityNotFound)
		}
		identity, err = r.identities.GetByID(ctx, id)
	case domain.TokenKindFederated:
		identity, err = r.identities.GetByExternalUID(ctx, claims.Subject)
	default:
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}

	if !identity.Active {
		return domain.Identity{}, domain.ErrIdentityDeactivated
	}

	r.markActive(identity.ID)
	return identity, nil
}

// markActive records the last-active timestamp without blocking or failing
// the resolution. Failures are logged, never propagated.
func (r *Resolver) markActive(id int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.identities.UpdateLastActive(ctx, id, time.Now().UTC()); err != nil {
			r.logger.Warn("last-active update failed", zap.Int64("identity_id", id), zap.Error(err))
		}
	}()
}
