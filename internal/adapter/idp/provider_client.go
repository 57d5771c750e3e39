// Package idp contains the outbound HTTP adapter for the federated identity
// provider's token verification surface.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/majidsafwaan2/gymguard/internal/credential"
	"github.com/majidsafwaan2/gymguard/internal/domain"
)

// HTTPProviderClient verifies ID tokens against the provider's verification
// endpoint. The provider is a black box beyond signature/expiry semantics.
type HTTPProviderClient struct {
	httpClient *http.Client
	verifyURL  string
	audience   string
}

var _ credential.ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client, verifyURL, audience string) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client, verifyURL: verifyURL, audience: audience}
}

// VerifyIDToken posts the opaque token to the provider and maps the response
// to a claim set. Transport failures and provider-side faults surface as
// ErrProviderUnavailable so callers can degrade instead of treating the
// credential as forged.
func (c *HTTPProviderClient) VerifyIDToken(ctx context.Context, idToken string) (*domain.ClaimSet, error) {
	if c.verifyURL == "" {
		return nil, fmt.Errorf("%w: verify url not configured", domain.ErrProviderUnavailable)
	}

	payload, err := json.Marshal(map[string]string{
		"token":    idToken,
		"audience": c.audience,
	})
	if err != nil {
		return nil, fmt.Errorf("encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", domain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: provider rejected token: status=%d", domain.ErrInvalidCredential, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrInvalidCredential, err)
	}

	subject := stringValue(coalesce(raw["sub"], raw["uid"], raw["user_id"]))
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidCredential)
	}

	claims := &domain.ClaimSet{
		Subject:  subject,
		Kind:     domain.TokenKindFederated,
		Email:    stringValue(raw["email"]),
		Provider: raw,
	}
	if exp := int64Value(raw["exp"]); exp > 0 {
		claims.Expiry = time.Unix(exp, 0).UTC()
	}
	if iat := int64Value(raw["iat"]); iat > 0 {
		claims.IssuedAt = time.Unix(iat, 0).UTC()
	}
	return claims, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return v
		}
		if v != nil {
			if _, ok := v.(string); !ok {
				return v
			}
		}
	}
	return nil
}
