package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const pgErrUniqueViolation = "23505"

var _ ports.ProfileRepository = (*ProfileRepository)(nil)

// ProfileRepository stores profiles and memberships in Postgres.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, email, full_name, org_id, account_status, created_at, updated_at`

func (r *ProfileRepository) FindWithMemberships(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := r.scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.org_id, m.role, COALESCE(r.role_name, ''), m.is_primary, m.created_at
		FROM memberships m
		LEFT JOIN roles r ON r.role_key = m.role
		WHERE m.user_id = $1
		ORDER BY m.is_primary DESC, m.created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m     domain.Membership
			orgID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &orgID, &m.Role, &m.RoleName, &m.IsPrimary, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.OrgID = orgID.String
		p.Memberships = append(p.Memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) FindByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return r.scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE lower(email) = lower($1)`, email))
}

func (r *ProfileRepository) CreateProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	out := *p
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_profiles (id, email, full_name, org_id, account_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.Email, nullIfEmpty(p.FullName), nullIfEmpty(p.OrgID), string(p.AccountStatus),
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return &out, nil
}

func (r *ProfileRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO memberships (id, user_id, org_id, role, is_primary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		m.ID, m.UserID, nullIfEmpty(m.OrgID), m.Role, m.IsPrimary,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// DeleteProfile removes the profile; memberships go with it through the
// cascading foreign key.
func (r *ProfileRepository) DeleteProfile(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) UpdateAccountStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.Profile, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_profiles SET account_status = $2, updated_at = now()
		WHERE id = $1`, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrProfileNotFound
	}
	return r.FindWithMemberships(ctx, id)
}

func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *ProfileRepository) scanProfile(row *sql.Row) (*domain.Profile, error) {
	var (
		p        domain.Profile
		fullName sql.NullString
		orgID    sql.NullString
		status   string
	)
	if err := row.Scan(&p.ID, &p.Email, &fullName, &orgID, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.FullName = fullName.String
	p.OrgID = orgID.String
	p.AccountStatus = domain.AccountStatus(status)
	return &p, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
