package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL tables.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateRefreshToken inserts a refresh token hash for a user.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("auth.refresh_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"family_id",
			"rotation",
			"auth_method",
			"ip",
			"user_agent",
			"created_at",
			"expires_at",
			"used_at",
			"revoked_at",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.FamilyID,
			token.Rotation,
			token.AuthMethod,
			token.IP,
			token.UserAgent,
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
			token.RevokedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetRefreshTokenByHash retrieves a refresh token record by its hashed value.
func (r *TokenRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"family_id",
		"rotation",
		"auth_method",
		"ip",
		"user_agent",
		"created_at",
		"expires_at",
		"used_at",
		"revoked_at",
	).
		From("auth.refresh_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		token     domain.RefreshToken
		ip        sql.NullString
		userAgent sql.NullString
		usedAt    sql.NullTime
		revokedAt sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.FamilyID,
		&token.Rotation,
		&token.AuthMethod,
		&ip,
		&userAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	token.IP = nullableStringPtr(ip)
	token.UserAgent = nullableStringPtr(userAgent)
	token.UsedAt = nullableTimePtr(usedAt)
	token.RevokedAt = nullableTimePtr(revokedAt)

	return &token, nil
}

// MarkRefreshTokenUsed sets used_at while the record is still unused and
// unrevoked, reporting whether this caller performed the transition.
// Concurrent rotations race on this update and exactly one wins.
func (r *TokenRepository) MarkRefreshTokenUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("auth.refresh_tokens").
		Set("used_at", usedAt.UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark refresh token used sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("mark refresh token used: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// RevokeFamily revokes every active token in the rotation family and returns
// how many records were touched.
func (r *TokenRepository) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	return r.revokeWhere(ctx, squirrel.Eq{"family_id": familyID}, reason)
}

// RevokeAllForUser revokes every active token across all of the user's
// families and returns how many records were touched.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	return r.revokeWhere(ctx, squirrel.Eq{"user_id": userID}, reason)
}

func (r *TokenRepository) revokeWhere(ctx context.Context, where squirrel.Eq, reason string) (int, error) {
	update := r.builder.Update("auth.refresh_tokens").
		Set("revoked_at", time.Now().UTC()).
		Where(where).
		Where("revoked_at IS NULL")

	if reason = strings.TrimSpace(reason); reason != "" {
		update = update.Set("revoked_reason", reason)
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

func nullableTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

var _ port.TokenRepository = (*TokenRepository)(nil)
