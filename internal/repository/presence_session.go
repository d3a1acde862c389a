package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// PresenceSessionRepository — долговременное зеркало presence-состояния.
// Пишет только presence-трекер; остальной код читает.
type PresenceSessionRepository interface {
	Upsert(ctx context.Context, sessionID, username string, online bool, at time.Time) error
	GetBySessionID(ctx context.Context, sessionID string) (*domain.PresenceSession, error)
	// ListActive возвращает сессии online с активностью внутри окна
	ListActive(ctx context.Context, window time.Duration) ([]*domain.PresenceSession, error)
	// DeleteInactive чистит офлайн-сессии без активности дольше окна
	DeleteInactive(ctx context.Context, olderThan time.Duration) (int64, error)
}

type presenceSessionRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewPresenceSessionRepository(db *pgxpool.Pool, log logger.Logger) PresenceSessionRepository {
	return &presenceSessionRepository{db: db, log: log}
}

func (r *presenceSessionRepository) Upsert(ctx context.Context, sessionID, username string, online bool, at time.Time) error {
	// Создание при первом CONNECT для session_id, дальше обновление на месте
	query := `
		INSERT INTO presence_sessions (session_id, username, is_online, last_activity_at, connected_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET is_online = EXCLUDED.is_online,
		    last_activity_at = EXCLUDED.last_activity_at
	`
	if _, err := r.db.Exec(ctx, query, sessionID, username, online, at); err != nil {
		r.log.Error("Failed to upsert presence session",
			"error", err, "session_id", sessionID, "username", username)
		return fmt.Errorf("failed to upsert presence session: %w", err)
	}
	return nil
}

func (r *presenceSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.PresenceSession, error) {
	query := `
		SELECT session_id, username, is_online, last_activity_at, connected_at
		FROM presence_sessions
		WHERE session_id = $1
	`
	var s domain.PresenceSession
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&s.SessionID, &s.Username, &s.IsOnline, &s.LastActivityAt, &s.ConnectedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get presence session: %w", err)
	}
	return &s, nil
}

func (r *presenceSessionRepository) ListActive(ctx context.Context, window time.Duration) ([]*domain.PresenceSession, error) {
	query := `
		SELECT session_id, username, is_online, last_activity_at, connected_at
		FROM presence_sessions
		WHERE is_online = true AND last_activity_at > now() - $1::interval
		ORDER BY last_activity_at DESC
	`
	rows, err := r.db.Query(ctx, query, window)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.PresenceSession
	for rows.Next() {
		var s domain.PresenceSession
		if err := rows.Scan(&s.SessionID, &s.Username, &s.IsOnline, &s.LastActivityAt, &s.ConnectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan presence session: %w", err)
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

func (r *presenceSessionRepository) DeleteInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM presence_sessions
		WHERE is_online = false AND last_activity_at < now() - $1::interval
	`
	tag, err := r.db.Exec(ctx, query, olderThan)
	if err != nil {
		r.log.Error("Failed to delete inactive sessions", "error", err)
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
