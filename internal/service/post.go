package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/repository"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// PostService — тонкий коллаборатор: хранит пост и публикует
// content-change события в /topic/posts.
type PostService interface {
	Create(ctx context.Context, author *domain.User, content string) (*repository.Post, error)
	Delete(ctx context.Context, actor *domain.User, postID uuid.UUID) error
	Like(ctx context.Context, actor *domain.User, postID uuid.UUID) (int, error)
	AddComment(ctx context.Context, actor *domain.User, postID uuid.UUID) (int, error)
	// Announce — глобальное объявление в /topic/announcements
	Announce(ctx context.Context, title, text string)
}

type postService struct {
	postRepo     repository.PostRepository
	notification NotificationService
	publisher    EventPublisher
	log          logger.Logger
}

func NewPostService(
	postRepo repository.PostRepository,
	notification NotificationService,
	publisher EventPublisher,
	log logger.Logger,
) PostService {
	return &postService{
		postRepo:     postRepo,
		notification: notification,
		publisher:    publisher,
		log:          log,
	}
}

func (s *postService) Create(ctx context.Context, author *domain.User, content string) (*repository.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > 5000 {
		return nil, apperrors.ErrBadRequest
	}

	post := &repository.Post{
		ID:         uuid.New(),
		AuthorID:   author.ID,
		AuthorName: author.Username,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	s.publisher.Broadcast(ws.DestPosts, domain.PostEvent{
		Type:       domain.PostEventCreated,
		PostID:     post.ID.String(),
		AuthorName: author.Username,
		Timestamp:  post.CreatedAt,
	})

	return post, nil
}

func (s *postService) Delete(ctx context.Context, actor *domain.User, postID uuid.UUID) error {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != actor.ID && actor.GlobalRole != domain.GlobalRoleTechnicalAdmin {
		return apperrors.ErrForbidden
	}

	if err := s.postRepo.Delete(ctx, postID); err != nil {
		return err
	}

	s.publisher.Broadcast(ws.DestPosts, domain.PostEvent{
		Type:      domain.PostEventDeleted,
		PostID:    postID.String(),
		Timestamp: time.Now(),
	})
	return nil
}

func (s *postService) Like(ctx context.Context, actor *domain.User, postID uuid.UUID) (int, error) {
	count, err := s.postRepo.IncrementLikes(ctx, postID, 1)
	if err != nil {
		return 0, err
	}

	s.publisher.Broadcast(ws.DestPosts, domain.PostEvent{
		Type:      domain.PostEventLikeCount,
		PostID:    postID.String(),
		LikeCount: &count,
		Timestamp: time.Now(),
	})

	// Уведомление автору поста
	if post, err := s.postRepo.GetByID(ctx, postID); err == nil && post.AuthorID != actor.ID {
		s.notification.Notify(ctx, post.AuthorID, &domain.Notification{
			ID:          uuid.New(),
			RecipientID: post.AuthorID,
			Type:        domain.NotificationTypeLike,
			ActorName:   actor.Username,
			Text:        actor.Username + " liked your post",
			EntityID:    strPtr(postID.String()),
			CreatedAt:   time.Now(),
		})
	}

	return count, nil
}

func (s *postService) AddComment(ctx context.Context, actor *domain.User, postID uuid.UUID) (int, error) {
	count, err := s.postRepo.IncrementComments(ctx, postID, 1)
	if err != nil {
		return 0, err
	}

	s.publisher.Broadcast(ws.DestPosts, domain.PostEvent{
		Type:         domain.PostEventCommentCount,
		PostID:       postID.String(),
		CommentCount: &count,
		Timestamp:    time.Now(),
	})
	return count, nil
}

func (s *postService) Announce(ctx context.Context, title, text string) {
	s.publisher.Broadcast(ws.DestAnnouncements, domain.Announcement{
		Title:     title,
		Text:      text,
		Timestamp: time.Now(),
	})
	s.log.Info("Announcement broadcast", "title", title)
}

func strPtr(s string) *string { return &s }
