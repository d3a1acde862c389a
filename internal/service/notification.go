package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/repository"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type NotificationService interface {
	// Notify сохраняет уведомление и пушит его получателю.
	// Сбой push не считается ошибкой: клиент заберёт ленту по запросу.
	Notify(ctx context.Context, recipientID uuid.UUID, notification *domain.Notification)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type notificationService struct {
	notificationRepo repository.NotificationRepository
	userRepo         repository.UserRepository
	publisher        EventPublisher
	log              logger.Logger
}

func NewNotificationService(
	notificationRepo repository.NotificationRepository,
	userRepo repository.UserRepository,
	publisher EventPublisher,
	log logger.Logger,
) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		publisher:        publisher,
		log:              log,
	}
}

func (s *notificationService) Notify(ctx context.Context, recipientID uuid.UUID, notification *domain.Notification) {
	if err := s.notificationRepo.Save(ctx, notification); err != nil {
		s.log.Error("Failed to save notification", "error", err, "recipient_id", recipientID)
		// Долговременная запись не удалась — push всё равно пробуем
	}

	recipient, err := s.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		s.log.Warn("Notification recipient lookup failed", "error", err, "recipient_id", recipientID)
		return
	}

	s.publisher.SendToUser(recipient.Username, ws.DestNotifications, notification)
}

func (s *notificationService) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.notificationRepo.ListRecent(ctx, userID, limit)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notificationRepo.UnreadCount(ctx, userID)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.notificationRepo.MarkAllRead(ctx, userID)
}
