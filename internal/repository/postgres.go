package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/majidsafwaan2/gymguard/internal/domain"
)

// Compile-time interface assertions.
var (
	_ IdentityRepository = (*PostgresIdentityRepo)(nil)
	_ SessionRepository  = (*PostgresSessionRepo)(nil)
)

const identityColumns = `id, email, external_uid, password_hash, first_name, last_name, category,
date_of_birth, consent_granted, consent_granted_at, consent_guardian_id, guardian_ids,
is_active, created_at, updated_at, last_active_at`

// PostgresIdentityRepo implements IdentityRepository on pgx.
type PostgresIdentityRepo struct {
	db *pgxpool.Pool
}

func NewPostgresIdentityRepo(pool *pgxpool.Pool) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: pool}
}

func (r *PostgresIdentityRepo) GetByID(ctx context.Context, id int64) (domain.Identity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

func (r *PostgresIdentityRepo) GetByExternalUID(ctx context.Context, uid string) (domain.Identity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE external_uid = $1`, uid)
	return scanIdentity(row)
}

func (r *PostgresIdentityRepo) GetByEmail(ctx context.Context, email string) (domain.Identity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	return scanIdentity(row)
}

const insertIdentitySQL = `INSERT INTO identities
(id, email, external_uid, password_hash, first_name, last_name, category, date_of_birth, guardian_ids, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + identityColumns

func (r *PostgresIdentityRepo) Create(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	var externalUID sql.NullString
	if identity.ExternalUID != "" {
		externalUID = sql.NullString{String: identity.ExternalUID, Valid: true}
	}
	guardianIDs := identity.GuardianIDs
	if guardianIDs == nil {
		guardianIDs = []int64{}
	}
	row := r.db.QueryRow(ctx, insertIdentitySQL,
		identity.ID,
		identity.Email,
		externalUID,
		identity.PasswordHash,
		identity.FirstName,
		identity.LastName,
		string(identity.Category),
		identity.DateOfBirth,
		guardianIDs,
		identity.Active,
	)
	created, err := scanIdentity(row)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return created, nil
}

func (r *PostgresIdentityRepo) UpdateLastActive(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE identities SET last_active_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("update last active: %w", err)
	}
	return nil
}

func (r *PostgresIdentityRepo) GrantConsent(ctx context.Context, id, guardianID int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE identities
SET consent_granted = TRUE, consent_granted_at = $3, consent_guardian_id = $2, updated_at = now()
WHERE id = $1 AND is_active`, id, guardianID, at)
	if err != nil {
		return fmt.Errorf("grant consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func (r *PostgresIdentityRepo) LinkGuardian(ctx context.Context, id, guardianID int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE identities
SET guardian_ids = array_append(guardian_ids, $2), updated_at = now()
WHERE id = $1 AND NOT ($2 = ANY(guardian_ids))`, id, guardianID); err != nil {
		return fmt.Errorf("link guardian: %w", err)
	}
	return nil
}

func (r *PostgresIdentityRepo) DeactivateCascade(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin deactivate: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE identities SET is_active = FALSE, updated_at = now() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE identity_id = $1 AND is_active`, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit deactivate: %w", err)
	}
	return nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanIdentity(row pgxRow) (domain.Identity, error) {
	var (
		identity          domain.Identity
		externalUID       sql.NullString
		passwordHash      sql.NullString
		category          string
		consentGrantedAt  sql.NullTime
		consentGuardianID sql.NullInt64
	)
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&externalUID,
		&passwordHash,
		&identity.FirstName,
		&identity.LastName,
		&category,
		&identity.DateOfBirth,
		&identity.Consent.Granted,
		&consentGrantedAt,
		&consentGuardianID,
		&identity.GuardianIDs,
		&identity.Active,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&identity.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, domain.ErrIdentityNotFound
		}
		return domain.Identity{}, fmt.Errorf("scan identity: %w", err)
	}
	identity.ExternalUID = externalUID.String
	identity.PasswordHash = passwordHash.String
	identity.Category = domain.Category(category)
	if consentGrantedAt.Valid {
		at := consentGrantedAt.Time
		identity.Consent.GrantedAt = &at
	}
	identity.Consent.GuardianID = consentGuardianID.Int64
	return identity, nil
}

const sessionColumns = `id, identity_id, session_token, device_info, ip_address, user_agent,
is_active, created_at, expires_at, last_activity`

// PostgresSessionRepo implements SessionRepository on pgx.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

const insertSessionSQL = `INSERT INTO sessions
(id, identity_id, session_token, device_info, ip_address, user_agent, is_active, expires_at, last_activity)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, now())
RETURNING ` + sessionColumns

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	device, err := json.Marshal(session.Device)
	if err != nil {
		return domain.Session{}, fmt.Errorf("encode device info: %w", err)
	}
	row := r.db.QueryRow(ctx, insertSessionSQL,
		session.ID,
		session.IdentityID,
		session.Token,
		device,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	)
	created, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

func (r *PostgresSessionRepo) GetByToken(ctx context.Context, token string) (domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_token = $1`, token)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, err
	}
	return session, nil
}

func (r *PostgresSessionRepo) ListByIdentity(ctx context.Context, identityID int64) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE identity_id = $1 ORDER BY created_at DESC`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *PostgresSessionRepo) Touch(ctx context.Context, token string, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE session_token = $1 AND is_active`, token, at); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) Revoke(ctx context.Context, token string) error {
	// Idempotent: revoking an already-inactive session matches zero rows.
	if _, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE session_token = $1 AND is_active`, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func scanSession(row pgxRow) (domain.Session, error) {
	var (
		session domain.Session
		device  []byte
	)
	err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.Token,
		&device,
		&session.IPAddress,
		&session.UserAgent,
		&session.Active,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastActivity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if len(device) > 0 {
		_ = json.Unmarshal(device, &session.Device)
	}
	return session, nil
}
