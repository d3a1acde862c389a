package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.DirectMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DirectMessage, error)
	// ListConversation — polling-источник правды для клиента
	ListConversation(ctx context.Context, userID, otherID uuid.UUID, limit int) ([]*domain.DirectMessage, error)
	MarkConversationRead(ctx context.Context, recipientID, senderID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `
	m.id, m.sender_id, su.username, m.recipient_id, ru.username,
	m.content, m.is_read, m.created_at, m.read_at
`

const messageJoins = `
	FROM direct_messages m
	JOIN users su ON su.id = m.sender_id
	JOIN users ru ON ru.id = m.recipient_id
`

func (r *messageRepository) Create(ctx context.Context, msg *domain.DirectMessage) error {
	query := `
		INSERT INTO direct_messages (id, sender_id, recipient_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, false, $5)
	`
	_, err := r.db.Exec(ctx, query, msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "sender_id", msg.SenderID)
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DirectMessage, error) {
	query := `SELECT ` + messageColumns + messageJoins + ` WHERE m.id = $1`
	var m domain.DirectMessage
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.SenderID, &m.SenderUsername, &m.RecipientID, &m.RecipientUsername,
		&m.Content, &m.IsRead, &m.CreatedAt, &m.ReadAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

func (r *messageRepository) ListConversation(ctx context.Context, userID, otherID uuid.UUID, limit int) ([]*domain.DirectMessage, error) {
	query := `
		SELECT ` + messageColumns + messageJoins + `
		WHERE (m.sender_id = $1 AND m.recipient_id = $2)
		   OR (m.sender_id = $2 AND m.recipient_id = $1)
		ORDER BY m.created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, userID, otherID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	defer rows.Close()

	var messages []*domain.DirectMessage
	for rows.Next() {
		var m domain.DirectMessage
		if err := rows.Scan(
			&m.ID, &m.SenderID, &m.SenderUsername, &m.RecipientID, &m.RecipientUsername,
			&m.Content, &m.IsRead, &m.CreatedAt, &m.ReadAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, recipientID, senderID uuid.UUID) (int64, error) {
	query := `
		UPDATE direct_messages
		SET is_read = true, read_at = now()
		WHERE recipient_id = $1 AND sender_id = $2 AND is_read = false
	`
	tag, err := r.db.Exec(ctx, query, recipientID, senderID)
	if err != nil {
		r.log.Error("Failed to mark conversation read", "error", err, "recipient_id", recipientID)
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *messageRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM direct_messages WHERE recipient_id = $1 AND is_read = false`
	var count int
	if err := r.db.QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
