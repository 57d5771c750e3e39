package domain

import "errors"

var (
	// ErrInvalidCredential covers malformed, expired, or forged credentials.
	ErrInvalidCredential = errors.New("auth: invalid credential")
	// ErrProviderUnavailable signals the federated IdP could not be reached.
	ErrProviderUnavailable = errors.New("auth: identity provider unavailable")
	// ErrIdentityNotFound signals no active identity matched the claims.
	ErrIdentityNotFound = errors.New("auth: identity not found")
	// ErrIdentityDeactivated signals the matched identity is soft-deactivated.
	ErrIdentityDeactivated = errors.New("auth: identity deactivated")
	// ErrConsentRequired signals a minor-sensitive action lacks guardian consent.
	ErrConsentRequired = errors.New("auth: guardian consent required")
	// ErrSessionNotFound signals an unknown or revoked session token.
	ErrSessionNotFound = errors.New("auth: session not found")
)
