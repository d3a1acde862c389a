package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

const (
	// Лента уведомлений живёт в Redis 30 дней
	NotificationTTL = 30 * 24 * time.Hour

	// Префиксы ключей Redis
	NotificationFeedKeyPrefix   = "notifications:user:%s:feed"
	NotificationUnreadKeyPrefix = "notifications:user:%s:unread"

	// Сколько последних уведомлений храним на пользователя
	notificationFeedMax = 200
)

type NotificationRepository interface {
	// Добавить уведомление в ленту и увеличить счётчик непрочитанных
	Save(ctx context.Context, notification *domain.Notification) error

	// Последние N уведомлений, от новых к старым
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Notification, error)

	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)

	// Сбросить счётчик непрочитанных
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type notificationRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewNotificationRepository(rdb *redis.Client, log logger.Logger) NotificationRepository {
	return &notificationRepository{rdb: rdb, log: log}
}

func (r *notificationRepository) feedKey(userID uuid.UUID) string {
	return fmt.Sprintf(NotificationFeedKeyPrefix, userID.String())
}

func (r *notificationRepository) unreadKey(userID uuid.UUID) string {
	return fmt.Sprintf(NotificationUnreadKeyPrefix, userID.String())
}

func (r *notificationRepository) Save(ctx context.Context, notification *domain.Notification) error {
	key := r.feedKey(notification.RecipientID)

	raw, err := json.Marshal(notification)
	if err != nil {
		r.log.Error("Failed to marshal notification", "error", err)
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// timestamp в миллисекундах как score для сортировки
	score := float64(notification.CreatedAt.UnixMilli())

	err = r.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: raw}).Err()
	if err != nil {
		r.log.Error("Failed to save notification", "error", err, "recipient_id", notification.RecipientID)
		return fmt.Errorf("failed to save notification: %w", err)
	}

	// Обрезаем ленту и продлеваем TTL; ошибки не критичны
	if err := r.rdb.ZRemRangeByRank(ctx, key, 0, int64(-notificationFeedMax-1)).Err(); err != nil {
		r.log.Warn("Failed to trim notification feed", "error", err)
	}
	if err := r.rdb.Expire(ctx, key, NotificationTTL).Err(); err != nil {
		r.log.Warn("Failed to set TTL on notification feed", "error", err)
	}

	if err := r.rdb.Incr(ctx, r.unreadKey(notification.RecipientID)).Err(); err != nil {
		r.log.Warn("Failed to increment unread counter", "error", err)
	}

	return nil
}

func (r *notificationRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Notification, error) {
	key := r.feedKey(userID)

	rawItems, err := r.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return []*domain.Notification{}, nil
		}
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*domain.Notification, 0, len(rawItems))
	for _, raw := range rawItems {
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			// Битая запись не должна ломать всю ленту
			r.log.Warn("Skipping malformed notification entry", "error", err)
			continue
		}
		notifications = append(notifications, &n)
	}
	return notifications, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := r.rdb.Get(ctx, r.unreadKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if err := r.rdb.Del(ctx, r.unreadKey(userID)).Err(); err != nil {
		r.log.Error("Failed to reset unread counter", "error", err, "user_id", userID)
		return fmt.Errorf("failed to reset unread counter: %w", err)
	}
	return nil
}
