// Package credential verifies bearer credentials. Two strategies are
// supported: self-issued signed tokens checked offline against the server
// secret, and federated identity-provider tokens re-verified at the provider.
package credential

import (
	"context"

	"github.com/majidsafwaan2/gymguard/internal/domain"
)

// Strategy validates one credential family.
type Strategy interface {
	Verify(ctx context.Context, rawCredential string, expectedKind domain.TokenKind) (*domain.ClaimSet, error)
}

// Verifier selects a strategy by credential shape and runs it. Self-issued
// tokens carry the configured issuer claim; everything else is treated as
// federated. The selection never trusts a client-supplied type field, so a
// caller cannot downgrade a federated check into a local one.
type Verifier struct {
	local     *LocalVerifier
	federated *FederatedVerifier
	issuer    string
}

// NewVerifier wires both strategies behind one entry point.
func NewVerifier(local *LocalVerifier, federated *FederatedVerifier, issuer string) *Verifier {
	return &Verifier{local: local, federated: federated, issuer: issuer}
}

// Verify dispatches to the matching strategy.
func (v *Verifier) Verify(ctx context.Context, rawCredential string, expectedKind domain.TokenKind) (*domain.ClaimSet, error) {
	if rawCredential == "" {
		return nil, domain.ErrInvalidCredential
	}
	if v.StrategyFor(rawCredential) == StrategyLocal {
		return v.local.Verify(ctx, rawCredential, expectedKind)
	}
	return v.federated.Verify(ctx, rawCredential, expectedKind)
}

// Strategy names used as metric labels.
const (
	StrategyLocal     = "local"
	StrategyFederated = "federated"
)

// StrategyFor reports which strategy the credential routes to. The answer
// depends only on the credential's shape, so it holds even when
// verification later fails.
func (v *Verifier) StrategyFor(rawCredential string) string {
	if issuer, ok := issuerOf(rawCredential); ok && issuer == v.issuer {
		return StrategyLocal
	}
	return StrategyFederated
}
