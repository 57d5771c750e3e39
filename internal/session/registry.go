// Package session tracks issued credential lineage for revocation and
// device auditing.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/majidsafwaan2/gymguard/internal/domain"
	"github.com/majidsafwaan2/gymguard/internal/metrics"
	"github.com/majidsafwaan2/gymguard/internal/repository"
)

// Registry manages session lifecycle. Postgres is authoritative; the cache
// is written through best-effort and consulted only on degraded paths.
type Registry struct {
	sessions   repository.SessionRepository
	identities repository.IdentityRepository
	cache      repository.SessionCache
	node       *snowflake.Node
	ttl        time.Duration
	tokenLen   int
	recorder   metrics.Recorder
	logger     *zap.Logger
}

// NewRegistry wires the session registry.
func NewRegistry(sessions repository.SessionRepository, identities repository.IdentityRepository, cache repository.SessionCache, node *snowflake.Node, ttl time.Duration, tokenLen int, recorder metrics.Recorder, logger *zap.Logger) *Registry {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.L()
	}
	if tokenLen < 32 {
		tokenLen = 32
	}
	return &Registry{
		sessions:   sessions,
		identities: identities,
		cache:      cache,
		node:       node,
		ttl:        ttl,
		tokenLen:   tokenLen,
		recorder:   recorder,
		logger:     logger,
	}
}

// Register creates a new session for the identity. Sessions are not
// deduped by device; concurrent sessions per identity are allowed.
func (r *Registry) Register(ctx context.Context, identity domain.Identity, device domain.DeviceInfo, ip, userAgent string) (domain.Session, error) {
	token, err := randomToken(r.tokenLen)
	if err != nil {
		return domain.Session{}, fmt.Errorf("generate session token: %w", err)
	}

	session := domain.Session{
		ID:         r.node.Generate().Int64(),
		IdentityID: identity.ID,
		Token:      token,
		Device:     device,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  time.Now().UTC().Add(r.ttl),
	}

	created, err := r.sessions.Create(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	r.cacheSave(ctx, created)
	r.recorder.RecordSessionEvent("register")
	return created, nil
}

// Touch updates last-activity on the session.
func (r *Registry) Touch(ctx context.Context, token string) error {
	now := time.Now().UTC()
	if err := r.sessions.Touch(ctx, token, now); err != nil {
		return err
	}
	if cached, err := r.cache.Get(ctx, token); err == nil && cached != nil {
		cached.LastActivity = now
		r.cacheSave(ctx, *cached)
	}
	return nil
}

// Revoke terminates the session. Revoking an already-inactive session is a
// no-op, not an error.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	if err := r.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, token); err != nil {
		r.logger.Warn("session cache delete failed", zap.Error(err))
	}
	r.recorder.RecordSessionEvent("revoke")
	return nil
}

// IsActive reports whether the session exists, is flagged active, and has
// not expired. The authoritative store is always consulted.
func (r *Registry) IsActive(ctx context.Context, token string) (bool, error) {
	session, err := r.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.Active && !session.Expired(time.Now().UTC()), nil
}

// ActiveFor reports whether the session is live and belongs to the given
// identity. Token refresh uses this instead of IsActive so one identity's
// refresh token can never ride another identity's session.
func (r *Registry) ActiveFor(ctx context.Context, token string, identityID int64) (bool, error) {
	session, err := r.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if session.IdentityID != identityID {
		return false, nil
	}
	return session.Active && !session.Expired(time.Now().UTC()), nil
}

// ListForIdentity returns the identity's sessions, newest first.
func (r *Registry) ListForIdentity(ctx context.Context, identityID int64) ([]domain.Session, error) {
	return r.sessions.ListByIdentity(ctx, identityID)
}

// Cached returns the cached copy of a session for degraded verification
// paths, or nil on a miss.
func (r *Registry) Cached(ctx context.Context, token string) (*domain.Session, error) {
	return r.cache.Get(ctx, token)
}

// DeactivateIdentity soft-deactivates the identity and revokes all of its
// sessions atomically, then purges the cache best-effort.
func (r *Registry) DeactivateIdentity(ctx context.Context, identityID int64) error {
	sessions, err := r.sessions.ListByIdentity(ctx, identityID)
	if err != nil {
		return err
	}

	if err := r.identities.DeactivateCascade(ctx, identityID); err != nil {
		return err
	}

	tokens := make([]string, 0, len(sessions))
	for _, session := range sessions {
		tokens = append(tokens, session.Token)
	}
	if err := r.cache.DeleteAll(ctx, tokens); err != nil {
		r.logger.Warn("session cache purge failed", zap.Int64("identity_id", identityID), zap.Error(err))
	}
	r.recorder.RecordSessionEvent("cascade")
	return nil
}

func (r *Registry) cacheSave(ctx context.Context, session domain.Session) {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := r.cache.Save(ctx, session, ttl); err != nil {
		r.logger.Warn("session cache save failed", zap.Error(err))
	}
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
