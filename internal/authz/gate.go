// Package authz composes credential verification, identity resolution, and
// consent policy into the single authorization entry point consumed by every
// protected operation.
package authz

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/majidsafwaan2/gymguard/internal/consent"
	"github.com/majidsafwaan2/gymguard/internal/credential"
	"github.com/majidsafwaan2/gymguard/internal/domain"
	"github.com/majidsafwaan2/gymguard/internal/identity"
	"github.com/majidsafwaan2/gymguard/internal/metrics"
	"github.com/majidsafwaan2/gymguard/internal/session"
)

// Sensitivity marks whether the requested action is gated by minor
// protection policy.
type Sensitivity int

const (
	// SensitivityStandard requires only a valid, resolved identity.
	SensitivityStandard Sensitivity = iota
	// SensitivityMinorProtected additionally requires consent policy to pass.
	SensitivityMinorProtected
)

// Reason tags why an authorization attempt was denied.
type Reason string

const (
	ReasonInvalidCredential   Reason = "invalid_credential"
	ReasonProviderUnavailable Reason = "provider_unavailable"
	ReasonIdentityNotFound    Reason = "identity_not_found"
	ReasonIdentityDeactivated Reason = "identity_deactivated"
	ReasonConsentRequired     Reason = "consent_required"
)

// Context is the authorized identity context handed to business operations.
// Holding one proves authorization happened; protected handlers accept it as
// a required input rather than re-checking.
type Context struct {
	Identity domain.Identity
	Claims   domain.ClaimSet
}

// Denial is the typed, caller-visible outcome of a refused authorization.
type Denial struct {
	Reason Reason
}

// Error implements error.
func (d *Denial) Error() string {
	return "authorization denied: " + string(d.Reason)
}

// Status maps the denial to its HTTP-equivalent status code.
func (d *Denial) Status() int {
	switch d.Reason {
	case ReasonConsentRequired:
		return http.StatusForbidden
	case ReasonProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// Public returns the caller-visible error description. Identity lookup
// failures collapse to the invalid-credential message so the response never
// confirms whether an account exists.
func (d *Denial) Public() (code, description string) {
	switch d.Reason {
	case ReasonConsentRequired:
		return "consent_required", "Guardian consent is required for this action."
	case ReasonProviderUnavailable:
		return "provider_unavailable", "Identity provider is temporarily unavailable."
	default:
		return "invalid_token", "Invalid or expired credential."
	}
}

// Gate is the authorization entry point. Stateless across calls; every call
// walks Verify -> Resolve -> (consent check when sensitive) and exits early
// on the first failed stage. No stage is retried internally.
type Gate struct {
	verifier *credential.Verifier
	resolver *identity.Resolver
	policy   consent.Policy
	sessions *session.Registry
	recorder metrics.Recorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewGate wires the authorization gate.
func NewGate(verifier *credential.Verifier, resolver *identity.Resolver, policy consent.Policy, sessions *session.Registry, recorder metrics.Recorder, logger *zap.Logger) *Gate {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Gate{
		verifier: verifier,
		resolver: resolver,
		policy:   policy,
		sessions: sessions,
		recorder: recorder,
		logger:   logger,
		tracer:   otel.Tracer("github.com/majidsafwaan2/gymguard/internal/authz"),
	}
}

// Authorize resolves a raw bearer credential into an authorized context or a
// typed denial. It never returns an untyped fault for a failed credential;
// protected handlers have exactly one failure path to check.
func (g *Gate) Authorize(ctx context.Context, rawCredential string, sensitivity Sensitivity) (*Context, *Denial) {
	ctx, span := g.tracer.Start(ctx, "Gate.Authorize")
	defer span.End()

	strategy := g.verifier.StrategyFor(rawCredential)
	start := time.Now()
	claims, err := g.verifier.Verify(ctx, rawCredential, domain.TokenKindAccess)
	g.recorder.RecordVerifyLatency(strategy, time.Since(start))
	if err != nil {
		return nil, g.deny(span, reasonForError(err), err)
	}

	resolved, err := g.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, g.deny(span, reasonForError(err), err)
	}

	if sensitivity == SensitivityMinorProtected {
		if !g.policy.IsAuthorized(resolved, false) {
			return nil, g.deny(span, ReasonConsentRequired, domain.ErrConsentRequired)
		}
	}

	g.recorder.RecordDecision("authorized", "")
	return &Context{Identity: resolved, Claims: *claims}, nil
}

// AuthorizeRefresh validates a refresh credential and resolves its identity.
// Consent policy never applies to token refresh itself.
func (g *Gate) AuthorizeRefresh(ctx context.Context, rawCredential string) (*Context, *Denial) {
	ctx, span := g.tracer.Start(ctx, "Gate.AuthorizeRefresh")
	defer span.End()

	claims, err := g.verifier.Verify(ctx, rawCredential, domain.TokenKindRefresh)
	if err != nil {
		return nil, g.deny(span, reasonForError(err), err)
	}

	resolved, err := g.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, g.deny(span, reasonForError(err), err)
	}

	g.recorder.RecordDecision("authorized", "")
	return &Context{Identity: resolved, Claims: *claims}, nil
}

// AuthorizeDegraded authorizes from a previously registered session token
// alone, without touching the identity provider. Callers use it after
// Authorize denied with ReasonProviderUnavailable so a provider outage does
// not log out clients holding a live session. The session must still be in
// the cache, active, and unexpired, and the identity is re-resolved locally.
func (g *Gate) AuthorizeDegraded(ctx context.Context, sessionToken string, sensitivity Sensitivity) (*Context, *Denial) {
	ctx, span := g.tracer.Start(ctx, "Gate.AuthorizeDegraded")
	defer span.End()

	if g.sessions == nil || sessionToken == "" {
		return nil, g.deny(span, ReasonInvalidCredential, domain.ErrInvalidCredential)
	}

	cached, err := g.sessions.Cached(ctx, sessionToken)
	if err != nil {
		return nil, g.deny(span, ReasonProviderUnavailable, err)
	}
	if cached == nil || !cached.Active || cached.Expired(time.Now().UTC()) {
		return nil, g.deny(span, ReasonInvalidCredential, domain.ErrSessionNotFound)
	}

	claims := &domain.ClaimSet{
		Subject: strconv.FormatInt(cached.IdentityID, 10),
		Kind:    domain.TokenKindAccess,
	}
	resolved, err := g.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, g.deny(span, reasonForError(err), err)
	}

	if sensitivity == SensitivityMinorProtected {
		if !g.policy.IsAuthorized(resolved, false) {
			return nil, g.deny(span, ReasonConsentRequired, domain.ErrConsentRequired)
		}
	}

	g.recorder.RecordDecision("authorized", "degraded")
	return &Context{Identity: resolved, Claims: *claims}, nil
}

func (g *Gate) deny(span trace.Span, reason Reason, err error) *Denial {
	span.RecordError(err)
	g.recorder.RecordDecision("denied", string(reason))
	g.logger.Info("authorization denied", zap.String("reason", string(reason)), zap.Error(err))
	return &Denial{Reason: reason}
}

func reasonForError(err error) Reason {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return ReasonProviderUnavailable
	case errors.Is(err, domain.ErrIdentityNotFound):
		return ReasonIdentityNotFound
	case errors.Is(err, domain.ErrIdentityDeactivated):
		return ReasonIdentityDeactivated
	case errors.Is(err, domain.ErrConsentRequired):
		return ReasonConsentRequired
	default:
		return ReasonInvalidCredential
	}
}
