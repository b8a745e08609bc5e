package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

// IdentityRepository implements port.IdentityRepository using PostgreSQL
// tables. Uniqueness of phone and of (provider, provider_user_id) is
// enforced by database constraints.
type IdentityRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	return &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new identity record.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity) error {
	stmt, args, err := r.builder.Insert("auth.identities").
		Columns(
			"id",
			"phone",
			"email",
			"name",
			"status",
			"created_at",
			"updated_at",
		).
		Values(
			identity.ID,
			identity.Phone,
			identity.Email,
			identity.Name,
			string(identity.Status),
			identity.CreatedAt,
			identity.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

// GetByID fetches an identity by its primary key.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByPhone fetches an identity by its canonical phone number.
func (r *IdentityRepository) GetByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"phone": phone})
}

// GetByEmail fetches an identity by email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

func (r *IdentityRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Identity, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"phone",
		"email",
		"name",
		"status",
		"created_at",
		"updated_at",
	).
		From("auth.identities").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		identity domain.Identity
		phone    sql.NullString
		email    sql.NullString
		name     sql.NullString
		status   string
	)

	if err := row.Scan(
		&identity.ID,
		&phone,
		&email,
		&name,
		&status,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	identity.Phone = nullableStringPtr(phone)
	identity.Email = nullableStringPtr(email)
	identity.Name = nullableStringPtr(name)
	identity.Status = domain.IdentityStatus(status)

	return &identity, nil
}

// GetLink fetches the SSO link for a provider account.
func (r *IdentityRepository) GetLink(ctx context.Context, provider, providerUserID string) (*domain.SsoLink, error) {
	stmt, args, err := r.builder.Select(
		"provider",
		"provider_user_id",
		"identity_id",
		"email",
		"created_at",
	).
		From("auth.sso_links").
		Where(squirrel.Eq{"provider": provider, "provider_user_id": providerUserID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sso link sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		link  domain.SsoLink
		email sql.NullString
	)

	if err := row.Scan(
		&link.Provider,
		&link.ProviderUserID,
		&link.IdentityID,
		&email,
		&link.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan sso link: %w", err)
	}

	link.Email = nullableStringPtr(email)

	return &link, nil
}

// CreateLink inserts a new SSO link row.
func (r *IdentityRepository) CreateLink(ctx context.Context, link domain.SsoLink) error {
	stmt, args, err := r.builder.Insert("auth.sso_links").
		Columns(
			"provider",
			"provider_user_id",
			"identity_id",
			"email",
			"created_at",
		).
		Values(
			link.Provider,
			link.ProviderUserID,
			link.IdentityID,
			link.Email,
			link.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert sso link sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert sso link: %w", err)
	}

	return nil
}

// ListLinks returns every SSO link attached to an identity.
func (r *IdentityRepository) ListLinks(ctx context.Context, identityID string) ([]domain.SsoLink, error) {
	stmt, args, err := r.builder.Select(
		"provider",
		"provider_user_id",
		"identity_id",
		"email",
		"created_at",
	).
		From("auth.sso_links").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sso links sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sso links: %w", err)
	}
	defer rows.Close()

	var links []domain.SsoLink
	for rows.Next() {
		var (
			link  domain.SsoLink
			email sql.NullString
		)
		if err := rows.Scan(
			&link.Provider,
			&link.ProviderUserID,
			&link.IdentityID,
			&email,
			&link.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sso link: %w", err)
		}
		link.Email = nullableStringPtr(email)
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sso links: %w", err)
	}

	return links, nil
}

func nullableStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
