package service

import (
	"github.com/mousti0113/class-social-media-sub001/internal/config"
	"github.com/mousti0113/class-social-media-sub001/internal/limiter"
	"github.com/mousti0113/class-social-media-sub001/internal/repository"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type Services struct {
	Auth         AuthService
	User         UserService
	Presence     PresenceService
	Typing       TypingService
	Message      MessageService
	Notification NotificationService
	Post         PostService
	RateLimit    RateLimitService
}

func NewServices(
	repos *repository.Repositories,
	limiterStore *limiter.Store,
	publisher EventPublisher,
	cfg *config.Config,
	log logger.Logger,
) *Services {
	notification := NewNotificationService(repos.Notification, repos.User, publisher, log)

	return &Services{
		Auth:         NewAuthService(repos.User, cfg.JWT, log),
		User:         NewUserService(repos.User, log),
		Presence:     NewPresenceService(repos.PresenceSession, repos.User, publisher, cfg.Presence.ActiveWindow, log),
		Typing:       NewTypingService(publisher, log),
		Message:      NewMessageService(repos.Message, repos.User, notification, publisher, log),
		Notification: notification,
		Post:         NewPostService(repos.Post, notification, publisher, log),
		RateLimit:    NewRateLimitService(limiterStore, log),
	}
}
