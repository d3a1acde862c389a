package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// Пост здесь — минимальный коллаборатор realtime-ядра: хранение нужно,
// чтобы события /topic/posts имели реальный источник счётчиков.
type Post struct {
	ID           uuid.UUID `json:"id"`
	AuthorID     uuid.UUID `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	Content      string    `json:"content"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type PostRepository interface {
	Create(ctx context.Context, post *Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*Post, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// IncrementLikes возвращает новое значение счётчика
	IncrementLikes(ctx context.Context, id uuid.UUID, delta int) (int, error)
	IncrementComments(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

type postRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewPostRepository(db *pgxpool.Pool, log logger.Logger) PostRepository {
	return &postRepository{db: db, log: log}
}

func (r *postRepository) Create(ctx context.Context, post *Post) error {
	query := `
		INSERT INTO posts (id, author_id, content, like_count, comment_count, created_at)
		VALUES ($1, $2, $3, 0, 0, $4)
	`
	if _, err := r.db.Exec(ctx, query, post.ID, post.AuthorID, post.Content, post.CreatedAt); err != nil {
		r.log.Error("Failed to create post", "error", err, "author_id", post.AuthorID)
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uuid.UUID) (*Post, error) {
	query := `
		SELECT p.id, p.author_id, u.username, p.content, p.like_count, p.comment_count, p.created_at
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.id = $1
	`
	var p Post
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.AuthorID, &p.AuthorName, &p.Content, &p.LikeCount, &p.CommentCount, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

func (r *postRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete post", "error", err, "post_id", id)
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *postRepository) IncrementLikes(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE posts
		SET like_count = greatest(like_count + $2, 0)
		WHERE id = $1
		RETURNING like_count
	`
	var count int
	if err := r.db.QueryRow(ctx, query, id, delta).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to update like count: %w", err)
	}
	return count, nil
}

func (r *postRepository) IncrementComments(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE posts
		SET comment_count = greatest(comment_count + $2, 0)
		WHERE id = $1
		RETURNING comment_count
	`
	var count int
	if err := r.db.QueryRow(ctx, query, id, delta).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to update comment count: %w", err)
	}
	return count, nil
}
