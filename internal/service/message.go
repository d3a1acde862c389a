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

type MessageService interface {
	Send(ctx context.Context, sender *domain.User, recipientUsername, content string) (*domain.DirectMessage, error)
	ListConversation(ctx context.Context, userID uuid.UUID, otherUsername string, limit int) ([]*domain.DirectMessage, error)
	MarkConversationRead(ctx context.Context, recipientID uuid.UUID, senderUsername string) error
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
}

type messageService struct {
	messageRepo  repository.MessageRepository
	userRepo     repository.UserRepository
	notification NotificationService
	publisher    EventPublisher
	log          logger.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	notification NotificationService,
	publisher EventPublisher,
	log logger.Logger,
) MessageService {
	return &messageService{
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		notification: notification,
		publisher:    publisher,
		log:          log,
	}
}

func (s *messageService) Send(ctx context.Context, sender *domain.User, recipientUsername, content string) (*domain.DirectMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrBadRequest
	}
	if len(content) > 2000 {
		return nil, apperrors.ErrBadRequest
	}

	recipient, err := s.userRepo.GetActiveByUsername(ctx, recipientUsername)
	if err != nil {
		return nil, err
	}

	msg := &domain.DirectMessage{
		ID:                uuid.New(),
		SenderID:          sender.ID,
		SenderUsername:    sender.Username,
		RecipientID:       recipient.ID,
		RecipientUsername: recipient.Username,
		Content:           content,
		CreatedAt:         time.Now(),
	}

	// Сначала долговременное состояние, потом push: потерянный push
	// клиент доберёт на следующем polling-цикле
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.publisher.SendToUser(recipient.Username, ws.DestMessages, msg)

	s.notification.Notify(ctx, recipient.ID, &domain.Notification{
		ID:          uuid.New(),
		RecipientID: recipient.ID,
		Type:        domain.NotificationTypeMessage,
		ActorName:   sender.Username,
		Text:        sender.Username + " sent you a message",
		CreatedAt:   msg.CreatedAt,
	})

	return msg, nil
}

func (s *messageService) ListConversation(ctx context.Context, userID uuid.UUID, otherUsername string, limit int) ([]*domain.DirectMessage, error) {
	other, err := s.userRepo.GetByUsername(ctx, otherUsername)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.messageRepo.ListConversation(ctx, userID, other.ID, limit)
}

func (s *messageService) MarkConversationRead(ctx context.Context, recipientID uuid.UUID, senderUsername string) error {
	sender, err := s.userRepo.GetByUsername(ctx, senderUsername)
	if err != nil {
		return err
	}
	marked, err := s.messageRepo.MarkConversationRead(ctx, recipientID, sender.ID)
	if err != nil {
		return err
	}
	if marked > 0 {
		s.log.Debug("Marked conversation read",
			"recipient_id", recipientID, "sender", senderUsername, "count", marked)
	}
	return nil
}

func (s *messageService) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.messageRepo.CountUnread(ctx, recipientID)
}
