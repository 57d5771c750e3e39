package repository

import (
	"context"
	"time"

	"github.com/majidsafwaan2/gymguard/internal/domain"
)

// IdentityRepository exposes persistence for user identities.
type IdentityRepository interface {
	GetByID(ctx context.Context, id int64) (domain.Identity, error)
	GetByExternalUID(ctx context.Context, uid string) (domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (domain.Identity, error)
	Create(ctx context.Context, identity domain.Identity) (domain.Identity, error)
	// UpdateLastActive is best-effort bookkeeping; callers log failures and
	// never propagate them.
	UpdateLastActive(ctx context.Context, id int64, at time.Time) error
	GrantConsent(ctx context.Context, id, guardianID int64, at time.Time) error
	LinkGuardian(ctx context.Context, id, guardianID int64) error
	// DeactivateCascade marks the identity inactive and revokes all of its
	// active sessions in a single transaction. No reader may observe the
	// identity inactive while a session is still active, or vice versa.
	DeactivateCascade(ctx context.Context, id int64) error
}

// SessionRepository handles session persistence. Postgres is authoritative;
// the Redis cache in internal/adapter/cache is advisory only.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) (domain.Session, error)
	GetByToken(ctx context.Context, token string) (domain.Session, error)
	ListByIdentity(ctx context.Context, identityID int64) ([]domain.Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Revoke(ctx context.Context, token string) error
}

// SessionCache holds session payloads for the degraded-provider fallback
// path and fast activity updates.
type SessionCache interface {
	Save(ctx context.Context, session domain.Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteAll(ctx context.Context, tokens []string) error
}
