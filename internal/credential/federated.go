package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/majidsafwaan2/gymguard/internal/domain"
)

// ProviderClient is the outbound surface of the federated identity provider.
// Implementations live in internal/adapter/idp.
type ProviderClient interface {
	// VerifyIDToken asks the provider to validate the token and return its
	// claims. Rejected or malformed tokens return ErrInvalidCredential;
	// unreachability, timeouts, and provider-side faults return
	// ErrProviderUnavailable.
	VerifyIDToken(ctx context.Context, idToken string) (*domain.ClaimSet, error)
}

// FederatedVerifier delegates verification to the identity provider with a
// bounded timeout. Timeouts surface as provider unavailability, the same as
// an unreachable provider.
type FederatedVerifier struct {
	provider ProviderClient
	timeout  time.Duration
}

// NewFederatedVerifier constructs the federated strategy.
func NewFederatedVerifier(provider ProviderClient, timeout time.Duration) *FederatedVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FederatedVerifier{provider: provider, timeout: timeout}
}

// Verify validates the token at the provider. Only access expectations are
// meaningful for federated credentials.
func (v *FederatedVerifier) Verify(ctx context.Context, rawCredential string, expectedKind domain.TokenKind) (*domain.ClaimSet, error) {
	if expectedKind == domain.TokenKindRefresh {
		return nil, fmt.Errorf("%w: federated token cannot act as refresh", domain.ErrInvalidCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	claims, err := v.provider.VerifyIDToken(ctx, rawCredential)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, ctx.Err())
		}
		return nil, err
	}

	if claims.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: provider claims carry no expiry", domain.ErrInvalidCredential)
	}
	if !claims.Expiry.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: expired", domain.ErrInvalidCredential)
	}
	claims.Kind = domain.TokenKindFederated
	return claims, nil
}
