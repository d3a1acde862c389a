package handler

import (
	"github.com/mousti0113/class-social-media-sub001/internal/config"
	"github.com/mousti0113/class-social-media-sub001/internal/service"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	Message      *MessageHandler
	Presence     *PresenceHandler
	Notification *NotificationHandler
	Post         *PostHandler
	Admin        *AdminHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, hub *ws.Hub, chain *ws.Chain, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(cfg),
		Auth:         NewAuthHandler(services.Auth, log),
		Message:      NewMessageHandler(services.Message, services.Typing, log),
		Presence:     NewPresenceHandler(services.Presence, log),
		Notification: NewNotificationHandler(services.Notification, log),
		Post:         NewPostHandler(services.Post, log),
		Admin:        NewAdminHandler(services.RateLimit, services.Post, services.Presence, hub, log),
		WebSocket:    NewWebSocketHandler(hub, chain, services.Presence, services.Typing, cfg.WebSocket, log),
	}
}
