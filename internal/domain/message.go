package domain

import (
	"time"

	"github.com/google/uuid"
)

type DirectMessage struct {
	ID                uuid.UUID  `json:"id"`
	SenderID          uuid.UUID  `json:"sender_id"`
	SenderUsername    string     `json:"sender_username"`
	RecipientID       uuid.UUID  `json:"recipient_id"`
	RecipientUsername string     `json:"recipient_username"`
	Content           string     `json:"content"`
	IsRead            bool       `json:"is_read"`
	CreatedAt         time.Time  `json:"created_at"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
}
