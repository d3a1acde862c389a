package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type Repositories struct {
	User            UserRepository
	PresenceSession PresenceSessionRepository
	Message         MessageRepository
	Notification    NotificationRepository
	Post            PostRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		User:            NewUserRepository(db, log),
		PresenceSession: NewPresenceSessionRepository(db, log),
		Message:         NewMessageRepository(db, log),
		Notification:    NewNotificationRepository(rdb, log),
		Post:            NewPostRepository(db, log),
	}
}
