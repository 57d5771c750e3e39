package domain

import "time"

// TokenKind distinguishes the credential a claim set was decoded from.
type TokenKind string

const (
	TokenKindAccess    TokenKind = "access"
	TokenKindRefresh   TokenKind = "refresh"
	TokenKindFederated TokenKind = "federated"
)

// ClaimSet is the verified, decoded contents of a bearer credential.
// It is ephemeral and never persisted.
type ClaimSet struct {
	Subject  string
	Kind     TokenKind
	Email    string
	IssuedAt time.Time
	Expiry   time.Time
	// Provider holds provider-specific claims for federated credentials.
	Provider map[string]any
}
