package service_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/majidsafwaan2/gymguard/internal/authz"
	"github.com/majidsafwaan2/gymguard/internal/config"
	"github.com/majidsafwaan2/gymguard/internal/consent"
	"github.com/majidsafwaan2/gymguard/internal/credential"
	"github.com/majidsafwaan2/gymguard/internal/domain"
	"github.com/majidsafwaan2/gymguard/internal/identity"
	"github.com/majidsafwaan2/gymguard/internal/service"
	"github.com/majidsafwaan2/gymguard/internal/session"
)

const (
	testIssuer = "gymguard"
	testSecret = "0123456789abcdef0123456789abcdef"
)

type fixture struct {
	auth       *service.AuthService
	identities *memoryIdentityRepo
	sessions   *memorySessionRepo
	registry   *session.Registry
	local      *credential.LocalVerifier
	provider   *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	identities := &memoryIdentityRepo{
		byID:    map[int64]domain.Identity{},
		byEmail: map[string]domain.Identity{},
		byUID:   map[string]domain.Identity{},
	}
	sessions := &memorySessionRepo{byToken: map[string]domain.Session{}}
	identities.sessionRepo = sessions
	cache := &memoryCache{entries: map[string]domain.Session{}}

	cfg := config.Config{
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		SessionTTL:      24 * time.Hour,
		SessionTokenLen: 32,
	}
	policy := consent.Policy{AdultAge: 18, MinRegistrableAge: 13, MaxRegistrableAge: 19, Enforced: true}
	logger := zap.NewNop()

	local := credential.NewLocalVerifier([]byte(testSecret), "HS256", testIssuer, cfg.AccessTokenTTL)
	provider := &stubProvider{}
	verifier := credential.NewVerifier(local, credential.NewFederatedVerifier(provider, time.Second), testIssuer)
	resolver := identity.NewResolver(identities, logger)
	registry := session.NewRegistry(sessions, identities, cache, node, cfg.SessionTTL, cfg.SessionTokenLen, nil, logger)
	gate := authz.NewGate(verifier, resolver, policy, registry, nil, logger)
	auth := service.NewAuthService(identities, registry, gate, local, policy, node, cfg, logger)

	return &fixture{auth: auth, identities: identities, sessions: sessions, registry: registry, local: local, provider: provider}
}

func minorInput() service.RegisterInput {
	return service.RegisterInput{
		Email:       "teen@example.com",
		Password:    "a long passphrase",
		FirstName:   "Sam",
		LastName:    "Teen",
		Category:    domain.CategoryMinor,
		DateOfBirth: time.Now().UTC().AddDate(-15, 0, -7),
	}
}

func TestRegisterMinorStartsUnconsented(t *testing.T) {
	f := newFixture(t)

	created, err := f.auth.Register(context.Background(), minorInput())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.True(t, created.Active)
	require.False(t, created.Consent.Granted)
	require.Zero(t, created.Consent.GuardianID)
}

func TestRegisterRejectsOutOfWindowAge(t *testing.T) {
	f := newFixture(t)

	young := minorInput()
	young.DateOfBirth = time.Now().UTC().AddDate(-11, 0, 0)
	_, err := f.auth.Register(context.Background(), young)
	requireAuthError(t, err, "age_not_allowed", http.StatusUnprocessableEntity)

	old := minorInput()
	old.DateOfBirth = time.Now().UTC().AddDate(-25, 0, 0)
	_, err = f.auth.Register(context.Background(), old)
	requireAuthError(t, err, "age_not_allowed", http.StatusUnprocessableEntity)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Register(context.Background(), minorInput())
	require.NoError(t, err)

	_, err = f.auth.Register(context.Background(), minorInput())
	requireAuthError(t, err, "email_taken", http.StatusConflict)
}

func TestRegisterRejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)

	in := minorInput()
	in.Category = domain.Category("superuser")
	_, err := f.auth.Register(context.Background(), in)
	requireAuthError(t, err, "invalid_request", http.StatusBadRequest)
}

func TestLoginIssuesTokensAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)

	resp, err := f.auth.Login(ctx, "teen@example.com", "a long passphrase", domain.DeviceInfo{Platform: "ios"}, "203.0.113.9", "gymguard/1.0")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.SessionToken)
	require.Equal(t, "Bearer", resp.TokenType)

	claims, err := f.local.Verify(ctx, resp.AccessToken, domain.TokenKindAccess)
	require.NoError(t, err)
	require.Equal(t, "teen@example.com", claims.Email)

	active, err := f.registry.IsActive(ctx, resp.SessionToken)
	require.NoError(t, err)
	require.True(t, active)
}

func TestLoginFailuresCollapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)

	_, badPassword := f.auth.Login(ctx, "teen@example.com", "not it", domain.DeviceInfo{}, "", "")
	_, unknownEmail := f.auth.Login(ctx, "nobody@example.com", "whatever", domain.DeviceInfo{}, "", "")

	f.identities.deactivate(created.ID)
	_, deactivated := f.auth.Login(ctx, "teen@example.com", "a long passphrase", domain.DeviceInfo{}, "", "")

	for _, err := range []error{badPassword, unknownEmail, deactivated} {
		requireAuthError(t, err, "invalid_grant", http.StatusBadRequest)
	}
	require.Equal(t, badPassword.Error(), deactivated.Error(), "deactivation is not disclosed")
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)
	login, err := f.auth.Login(ctx, "teen@example.com", "a long passphrase", domain.DeviceInfo{}, "", "")
	require.NoError(t, err)

	resp, denial, err := f.auth.Refresh(ctx, login.RefreshToken, login.SessionToken)
	require.NoError(t, err)
	require.Nil(t, denial)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, login.SessionToken, resp.SessionToken)
}

func TestRefreshRejectsAccessTokenAndDeadSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)
	login, err := f.auth.Login(ctx, "teen@example.com", "a long passphrase", domain.DeviceInfo{}, "", "")
	require.NoError(t, err)

	_, denial, err := f.auth.Refresh(ctx, login.AccessToken, login.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, denial, "access token is not a refresh credential")

	require.NoError(t, f.auth.Logout(ctx, login.SessionToken))
	_, denial, err = f.auth.Refresh(ctx, login.RefreshToken, login.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, denial, "revoked session blocks refresh")
}

func TestRefreshRejectsForeignSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)
	other := minorInput()
	other.Email = "other-teen@example.com"
	_, err = f.auth.Register(ctx, other)
	require.NoError(t, err)

	loginA, err := f.auth.Login(ctx, "teen@example.com", "a long passphrase", domain.DeviceInfo{}, "", "")
	require.NoError(t, err)
	loginB, err := f.auth.Login(ctx, "other-teen@example.com", "a long passphrase", domain.DeviceInfo{}, "", "")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, loginA.SessionToken))

	_, denial, err := f.auth.Refresh(ctx, loginA.RefreshToken, loginB.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, denial, "another identity's session does not satisfy the live-session check")
	require.Equal(t, authz.ReasonInvalidCredential, denial.Reason)

	resp, denial, err := f.auth.Refresh(ctx, loginB.RefreshToken, loginB.SessionToken)
	require.NoError(t, err)
	require.Nil(t, denial)
	require.NotEmpty(t, resp.AccessToken)
}

func TestFederatedExchangeRequiresLinkedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.claims = &domain.ClaimSet{Subject: "firebase-uid-9", Expiry: time.Now().Add(time.Hour)}

	_, denial, err := f.auth.FederatedExchange(ctx, "idp-token", domain.DeviceInfo{}, "", "")
	require.NoError(t, err)
	require.NotNil(t, denial, "unknown provider uid is denied, not auto-created")

	created, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)
	f.identities.linkExternalUID(created.ID, "firebase-uid-9")

	resp, denial, err := f.auth.FederatedExchange(ctx, "idp-token", domain.DeviceInfo{}, "", "")
	require.NoError(t, err)
	require.Nil(t, denial)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.SessionToken)
}

func TestGrantConsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	guardian := domain.Identity{
		ID:          900,
		Email:       "parent@example.com",
		Category:    domain.CategoryGuardian,
		DateOfBirth: time.Now().UTC().AddDate(-40, 0, 0),
		Active:      true,
	}
	f.identities.put(guardian)

	in := minorInput()
	in.GuardianIDs = []int64{guardian.ID}
	minor, err := f.auth.Register(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.auth.GrantConsent(ctx, guardian, minor.ID))

	updated, err := f.identities.GetByID(ctx, minor.ID)
	require.NoError(t, err)
	require.True(t, updated.Consent.Granted)
	require.Equal(t, guardian.ID, updated.Consent.GuardianID)
}

func TestGrantConsentRejectsUnlinkedGuardian(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stranger := domain.Identity{ID: 901, Category: domain.CategoryGuardian, Active: true}
	f.identities.put(stranger)

	minor, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)

	err = f.auth.GrantConsent(ctx, stranger, minor.ID)
	requireAuthError(t, err, "forbidden", http.StatusForbidden)
}

func TestGrantConsentRejectsNonGuardianGrantor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	coach := domain.Identity{ID: 902, Category: domain.CategoryCoach, Active: true}
	minor, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)

	err = f.auth.GrantConsent(ctx, coach, minor.ID)
	requireAuthError(t, err, "forbidden", http.StatusForbidden)
}

func TestDeactivateRevokesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.auth.Register(ctx, minorInput())
	require.NoError(t, err)
	login, err := f.auth.Login(ctx, "teen@example.com", "a long passphrase", domain.DeviceInfo{}, "", "")
	require.NoError(t, err)

	require.NoError(t, f.auth.Deactivate(ctx, created.ID))

	active, err := f.registry.IsActive(ctx, login.SessionToken)
	require.NoError(t, err)
	require.False(t, active)

	_, err = f.auth.Login(ctx, "teen@example.com", "a long passphrase", domain.DeviceInfo{}, "", "")
	requireAuthError(t, err, "invalid_grant", http.StatusBadRequest)
}

func requireAuthError(t *testing.T, err error, code string, status int) {
	t.Helper()
	require.Error(t, err)
	authErr, ok := err.(*service.AuthError)
	require.True(t, ok, "expected AuthError, got %T: %v", err, err)
	require.Equal(t, code, authErr.Code)
	require.Equal(t, status, authErr.Status)
}

type stubProvider struct {
	claims *domain.ClaimSet
	err    error
}

func (s *stubProvider) VerifyIDToken(ctx context.Context, idToken string) (*domain.ClaimSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.claims == nil {
		return nil, domain.ErrInvalidCredential
	}
	copied := *s.claims
	return &copied, nil
}

type memoryIdentityRepo struct {
	mu          sync.Mutex
	byID        map[int64]domain.Identity
	byEmail     map[string]domain.Identity
	byUID       map[string]domain.Identity
	sessionRepo *memorySessionRepo
}

func (m *memoryIdentityRepo) put(identity domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(identity)
}

func (m *memoryIdentityRepo) store(identity domain.Identity) {
	m.byID[identity.ID] = identity
	if identity.Email != "" {
		m.byEmail[identity.Email] = identity
	}
	if identity.ExternalUID != "" {
		m.byUID[identity.ExternalUID] = identity
	}
}

func (m *memoryIdentityRepo) linkExternalUID(id int64, uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity := m.byID[id]
	identity.ExternalUID = uid
	m.store(identity)
}

func (m *memoryIdentityRepo) deactivate(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity := m.byID[id]
	identity.Active = false
	m.store(identity)
}

func (m *memoryIdentityRepo) GetByID(ctx context.Context, id int64) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return identity, nil
}

func (m *memoryIdentityRepo) GetByExternalUID(ctx context.Context, uid string) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byUID[uid]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return identity, nil
}

func (m *memoryIdentityRepo) GetByEmail(ctx context.Context, email string) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byEmail[email]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return identity, nil
}

func (m *memoryIdentityRepo) Create(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity.CreatedAt = time.Now().UTC()
	identity.UpdatedAt = identity.CreatedAt
	m.store(identity)
	return identity, nil
}

func (m *memoryIdentityRepo) UpdateLastActive(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.byID[id]; ok {
		identity.LastActiveAt = at
		m.store(identity)
	}
	return nil
}

func (m *memoryIdentityRepo) GrantConsent(ctx context.Context, id, guardianID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok || !identity.Active {
		return domain.ErrIdentityNotFound
	}
	identity.Consent = domain.ConsentRecord{Granted: true, GrantedAt: &at, GuardianID: guardianID}
	m.store(identity)
	return nil
}

func (m *memoryIdentityRepo) LinkGuardian(ctx context.Context, id, guardianID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	identity.GuardianIDs = append(identity.GuardianIDs, guardianID)
	m.store(identity)
	return nil
}

func (m *memoryIdentityRepo) DeactivateCascade(ctx context.Context, id int64) error {
	m.mu.Lock()
	identity, ok := m.byID[id]
	if !ok || !identity.Active {
		m.mu.Unlock()
		return domain.ErrIdentityNotFound
	}
	identity.Active = false
	m.store(identity)
	m.mu.Unlock()

	if m.sessionRepo != nil {
		m.sessionRepo.revokeAll(id)
	}
	return nil
}

type memorySessionRepo struct {
	mu      sync.Mutex
	byToken map[string]domain.Session
}

func (m *memorySessionRepo) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.Active = true
	session.CreatedAt = time.Now().UTC()
	session.LastActivity = session.CreatedAt
	m.byToken[session.Token] = session
	return session, nil
}

func (m *memorySessionRepo) GetByToken(ctx context.Context, token string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byToken[token]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (m *memorySessionRepo) ListByIdentity(ctx context.Context, identityID int64) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, session := range m.byToken {
		if session.IdentityID == identityID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (m *memorySessionRepo) Touch(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.byToken[token]; ok && session.Active {
		session.LastActivity = at
		m.byToken[token] = session
	}
	return nil
}

func (m *memorySessionRepo) Revoke(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.byToken[token]; ok && session.Active {
		session.Active = false
		m.byToken[token] = session
	}
	return nil
}

func (m *memorySessionRepo) revokeAll(identityID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, session := range m.byToken {
		if session.IdentityID == identityID {
			session.Active = false
			m.byToken[token] = session
		}
	}
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]domain.Session
}

func (m *memoryCache) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[session.Token] = session
	return nil
}

func (m *memoryCache) Get(ctx context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.entries[token]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (m *memoryCache) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

func (m *memoryCache) DeleteAll(ctx context.Context, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range tokens {
		delete(m.entries, token)
	}
	return nil
}
