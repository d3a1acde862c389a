package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetActiveByUsername — контракт user-lookup для realtime-ядра:
	// возвращает только активных пользователей
	GetActiveByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	CreateToken(ctx context.Context, token *domain.UserToken) error
	GetTokenByHash(ctx context.Context, tokenHash string) (*domain.UserToken, error)
	RevokeToken(ctx context.Context, tokenID uuid.UUID, reason string) error
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

const userColumns = `
	id, username, email, password_hash, display_name, avatar_url,
	global_role, cohort_id, is_active, is_email_verified, last_login_at,
	created_at, updated_at
`

func (r *userRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName, &u.AvatarURL,
		&u.GlobalRole, &u.CohortID, &u.IsActive, &u.IsEmailVerified, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, username))
}

func (r *userRepository) GetActiveByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND is_active = true`
	return r.scanUser(r.db.QueryRow(ctx, query, username))
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		r.log.Error("Failed to update last login", "error", err, "user_id", id)
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *userRepository) CreateToken(ctx context.Context, token *domain.UserToken) error {
	query := `
		INSERT INTO user_tokens (id, user_id, refresh_token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query,
		token.ID, token.UserID, token.RefreshTokenHash, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		r.log.Error("Failed to create refresh token", "error", err, "user_id", token.UserID)
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *userRepository) GetTokenByHash(ctx context.Context, tokenHash string) (*domain.UserToken, error) {
	query := `
		SELECT id, user_id, refresh_token_hash, created_at, expires_at, revoked_at, revoked_reason
		FROM user_tokens
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
	`
	var t domain.UserToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.RefreshTokenHash, &t.CreatedAt, &t.ExpiresAt,
		&t.RevokedAt, &t.RevokedReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &t, nil
}

func (r *userRepository) RevokeToken(ctx context.Context, tokenID uuid.UUID, reason string) error {
	query := `UPDATE user_tokens SET revoked_at = now(), revoked_reason = $2 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, tokenID, reason); err != nil {
		r.log.Error("Failed to revoke token", "error", err, "token_id", tokenID)
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
