package domain

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Type        string    `json:"type"`
	ActorName   string    `json:"actor_name"`
	Text        string    `json:"text"`
	EntityID    *string   `json:"entity_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	NotificationTypeLike     = "like"
	NotificationTypeComment  = "comment"
	NotificationTypeMention  = "mention"
	NotificationTypeMessage  = "message"
	NotificationTypeFollower = "follower"
	NotificationTypeSystem   = "system"
)
