package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/majidsafwaan2/gymguard/internal/authz"
	"github.com/majidsafwaan2/gymguard/internal/config"
	"github.com/majidsafwaan2/gymguard/internal/consent"
	"github.com/majidsafwaan2/gymguard/internal/credential"
	"github.com/majidsafwaan2/gymguard/internal/domain"
	pw "github.com/majidsafwaan2/gymguard/internal/password"
	"github.com/majidsafwaan2/gymguard/internal/repository"
	"github.com/majidsafwaan2/gymguard/internal/session"
)

// TokenResponse is returned by every token-issuing flow.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthError is a caller-visible, typed service failure.
type AuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newAuthError(code, desc string, status int) *AuthError {
	return &AuthError{Code: code, Description: desc, Status: status}
}

// invalidLogin is shared by every credential failure on login so responses
// never reveal which check failed.
func invalidLogin() *AuthError {
	return newAuthError("invalid_grant", "Wrong email or password.", http.StatusBadRequest)
}

// RegisterInput carries a password registration request.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Category    domain.Category
	DateOfBirth time.Time
	GuardianIDs []int64
}

// AuthService encapsulates registration, login, and account lifecycle flows.
type AuthService struct {
	identities repository.IdentityRepository
	registry   *session.Registry
	gate       *authz.Gate
	local      *credential.LocalVerifier
	policy     consent.Policy
	node       *snowflake.Node
	cfg        config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(identities repository.IdentityRepository, registry *session.Registry, gate *authz.Gate, local *credential.LocalVerifier, policy consent.Policy, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		identities: identities,
		registry:   registry,
		gate:       gate,
		local:      local,
		policy:     policy,
		node:       node,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("github.com/majidsafwaan2/gymguard/internal/service"),
	}
}

// Register creates a new identity from a password signup. Minor-category
// signups must fall inside the registrable age window and start without
// consent; a guardian grants it later.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.Identity, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return domain.Identity{}, newAuthError("invalid_request", "Email and password are required.", http.StatusBadRequest)
	}
	if !in.Category.Valid() {
		return domain.Identity{}, newAuthError("invalid_request", "Unknown account category.", http.StatusBadRequest)
	}
	if in.DateOfBirth.IsZero() {
		return domain.Identity{}, newAuthError("invalid_request", "Date of birth is required.", http.StatusBadRequest)
	}
	if in.Category == domain.CategoryMinor && !s.policy.WithinRegistrableAge(in.DateOfBirth, time.Now().UTC()) {
		return domain.Identity{}, newAuthError("age_not_allowed", "Age is outside the allowed range.", http.StatusUnprocessableEntity)
	}

	if _, err := s.identities.GetByEmail(ctx, email); err == nil {
		return domain.Identity{}, newAuthError("email_taken", "An account with this email already exists.", http.StatusConflict)
	} else if !errors.Is(err, domain.ErrIdentityNotFound) {
		span.RecordError(err)
		return domain.Identity{}, fmt.Errorf("register lookup: %w", err)
	}

	hashed, err := pw.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	identity := domain.Identity{
		ID:           s.node.Generate().Int64(),
		Email:        email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Category:     in.Category,
		DateOfBirth:  in.DateOfBirth,
		GuardianIDs:  in.GuardianIDs,
		Active:       true,
	}

	created, err := s.identities.Create(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return domain.Identity{}, fmt.Errorf("create identity: %w", err)
	}

	s.audit("register.success", "identity_id", created.ID, "category", string(created.Category))
	return created, nil
}

// Login authenticates with email and password, issues tokens, and registers
// a session.
func (s *AuthService) Login(ctx context.Context, email, password string, device domain.DeviceInfo, ip, userAgent string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	identity, err := s.identities.GetByEmail(ctx, normalized)
	if err != nil {
		span.RecordError(err)
		return nil, invalidLogin()
	}
	if !identity.Active {
		// Same response as a bad password; deactivation is not disclosed.
		return nil, invalidLogin()
	}
	if identity.PasswordHash == "" {
		return nil, invalidLogin()
	}

	valid, err := pw.Verify(password, identity.PasswordHash)
	if err != nil || !valid {
		span.RecordError(fmt.Errorf("invalid password"))
		return nil, invalidLogin()
	}

	resp, err := s.issueTokens(ctx, identity, device, ip, userAgent)
	if err == nil {
		s.audit("password.login.success", "identity_id", identity.ID)
	} else {
		span.RecordError(err)
	}
	return resp, err
}

// FederatedExchange verifies a federated IdP token through the gate and
// issues local tokens for the linked identity. Unknown external UIDs are a
// denial, never an auto-created account.
func (s *AuthService) FederatedExchange(ctx context.Context, idToken string, device domain.DeviceInfo, ip, userAgent string) (*TokenResponse, *authz.Denial, error) {
	ctx, span := s.startSpan(ctx, "AuthService.FederatedExchange")
	defer span.End()

	authzCtx, denial := s.gate.Authorize(ctx, idToken, authz.SensitivityStandard)
	if denial != nil {
		return nil, denial, nil
	}

	resp, err := s.issueTokens(ctx, authzCtx.Identity, device, ip, userAgent)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	s.audit("federated.login.success", "identity_id", authzCtx.Identity.ID)
	return resp, nil, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// session presented alongside must still be active and must belong to the
// refresh token's identity.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, sessionToken string) (*TokenResponse, *authz.Denial, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	authzCtx, denial := s.gate.AuthorizeRefresh(ctx, refreshToken)
	if denial != nil {
		return nil, denial, nil
	}

	active, err := s.registry.ActiveFor(ctx, sessionToken, authzCtx.Identity.ID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("refresh session check: %w", err)
	}
	if !active {
		return nil, &authz.Denial{Reason: authz.ReasonInvalidCredential}, nil
	}
	if err := s.registry.Touch(ctx, sessionToken); err != nil {
		s.log().Warn("session touch failed", zap.Error(err))
	}

	access, err := s.local.Issue(authzCtx.Identity, domain.TokenKindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.local.Issue(authzCtx.Identity, domain.TokenKindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.audit("refresh.success", "identity_id", authzCtx.Identity.ID)
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionToken: sessionToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil, nil
}

// GrantConsent records guardian consent for a linked minor. The granting
// guardian id is written onto the consent record itself; linkage alone never
// satisfies the consent check.
func (s *AuthService) GrantConsent(ctx context.Context, guardian domain.Identity, minorID int64) error {
	ctx, span := s.startSpan(ctx, "AuthService.GrantConsent")
	defer span.End()

	if guardian.Category != domain.CategoryGuardian && guardian.Category != domain.CategoryAdmin {
		return newAuthError("forbidden", "Only guardians may grant consent.", http.StatusForbidden)
	}

	minor, err := s.identities.GetByID(ctx, minorID)
	if err != nil {
		span.RecordError(err)
		return newAuthError("not_found", "Minor account not found.", http.StatusNotFound)
	}
	if !minor.Active {
		return newAuthError("not_found", "Minor account not found.", http.StatusNotFound)
	}
	if minor.Category != domain.CategoryMinor {
		return newAuthError("invalid_request", "Consent applies to minor accounts only.", http.StatusBadRequest)
	}
	if guardian.Category == domain.CategoryGuardian && !containsID(minor.GuardianIDs, guardian.ID) {
		return newAuthError("forbidden", "Guardian is not linked to this minor.", http.StatusForbidden)
	}

	if err := s.identities.GrantConsent(ctx, minor.ID, guardian.ID, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("grant consent: %w", err)
	}

	s.audit("consent.granted", "identity_id", minor.ID, "guardian_id", guardian.ID)
	return nil
}

// Logout revokes the presented session. Idempotent.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	if err := s.registry.Revoke(ctx, sessionToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Deactivate soft-deactivates the identity and cascade-revokes its sessions.
func (s *AuthService) Deactivate(ctx context.Context, identityID int64) error {
	ctx, span := s.startSpan(ctx, "AuthService.Deactivate")
	defer span.End()

	if err := s.registry.DeactivateIdentity(ctx, identityID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deactivate identity: %w", err)
	}
	s.audit("identity.deactivated", "identity_id", identityID)
	return nil
}

// Sessions lists the identity's sessions, newest first.
func (s *AuthService) Sessions(ctx context.Context, identityID int64) ([]domain.Session, error) {
	return s.registry.ListForIdentity(ctx, identityID)
}

func (s *AuthService) issueTokens(ctx context.Context, identity domain.Identity, device domain.DeviceInfo, ip, userAgent string) (*TokenResponse, error) {
	access, err := s.local.Issue(identity, domain.TokenKindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.local.Issue(identity, domain.TokenKindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	sess, err := s.registry.Register(ctx, identity, device, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionToken: sess.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
