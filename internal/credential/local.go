package credential

import (
	"context"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/majidsafwaan2/gymguard/internal/domain"
)

// tokenClaims is the custom JWT payload carried by self-issued tokens.
type tokenClaims struct {
	TokenUse string `json:"token_use"`
	Email    string `json:"email,omitempty"`
	Category string `json:"category,omitempty"`
}

// LocalVerifier validates self-issued HS256 tokens against the server secret.
// Fully offline and deterministic.
type LocalVerifier struct {
	secret    []byte
	algorithm gojose.SignatureAlgorithm
	issuer    string
	accessTTL time.Duration
}

// NewLocalVerifier constructs the local strategy from server signing config.
func NewLocalVerifier(secret []byte, algorithm, issuer string, accessTTL time.Duration) *LocalVerifier {
	return &LocalVerifier{
		secret:    secret,
		algorithm: gojose.SignatureAlgorithm(algorithm),
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

// Verify checks signature, algorithm, issuer, and expiry. Every failure maps
// to ErrInvalidCredential; which check failed is logged upstream, never
// revealed to the caller.
func (v *LocalVerifier) Verify(_ context.Context, rawCredential string, expectedKind domain.TokenKind) (*domain.ClaimSet, error) {
	parsed, err := gojwt.ParseSigned(rawCredential, []gojose.SignatureAlgorithm{v.algorithm})
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", domain.ErrInvalidCredential, err)
	}

	var std gojwt.Claims
	var custom tokenClaims
	if err := parsed.Claims(v.secret, &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: verify: %v", domain.ErrInvalidCredential, err)
	}

	if err := std.Validate(gojwt.Expected{Issuer: v.issuer, Time: time.Now().UTC()}); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", domain.ErrInvalidCredential, err)
	}
	if std.Expiry == nil || !std.Expiry.Time().After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: expired", domain.ErrInvalidCredential)
	}

	kind := domain.TokenKind(custom.TokenUse)
	if kind != domain.TokenKindAccess && kind != domain.TokenKindRefresh {
		return nil, fmt.Errorf("%w: unknown token use", domain.ErrInvalidCredential)
	}
	// A refresh token never satisfies an access expectation, and vice versa.
	if kind != expectedKind {
		return nil, fmt.Errorf("%w: token use mismatch", domain.ErrInvalidCredential)
	}

	claims := &domain.ClaimSet{
		Subject: std.Subject,
		Kind:    kind,
		Email:   custom.Email,
		Expiry:  std.Expiry.Time(),
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	return claims, nil
}

// Issue signs a token of the given kind for the identity. Used by the login
// and refresh flows; verification and issuance share one secret and issuer.
func (v *LocalVerifier) Issue(identity domain.Identity, kind domain.TokenKind, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: v.algorithm, Key: v.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   fmt.Sprintf("%d", identity.ID),
		Issuer:    v.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := tokenClaims{
		TokenUse: string(kind),
		Email:    identity.Email,
		Category: string(identity.Category),
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// AccessTTL exposes the configured access token lifetime.
func (v *LocalVerifier) AccessTTL() time.Duration {
	return v.accessTTL
}

// issuerOf decodes the unverified issuer claim for strategy selection.
// Signature validation happens in Verify; this only inspects shape.
func issuerOf(rawCredential string) (string, bool) {
	parsed, err := gojwt.ParseSigned(rawCredential, allSignatureAlgorithms)
	if err != nil {
		return "", false
	}
	var std gojwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&std); err != nil {
		return "", false
	}
	return std.Issuer, true
}

var allSignatureAlgorithms = []gojose.SignatureAlgorithm{
	gojose.HS256, gojose.HS384, gojose.HS512,
	gojose.RS256, gojose.RS384, gojose.RS512,
	gojose.ES256, gojose.ES384, gojose.ES512,
	gojose.EdDSA,
}
