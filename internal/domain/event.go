package domain

import (
	"time"
)

// Push-события — транзиентные конверты, доставляемые по realtime-каналу.
// Не сохраняются: потеря не ломает состояние, клиент сверяется через polling.

type PresenceEvent struct {
	Type      string    `json:"type"` // "online" | "offline"
	Username  string    `json:"username"`
	CohortID  *string   `json:"cohort_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

type TypingEvent struct {
	SenderUsername string    `json:"sender_username"`
	IsTyping       bool      `json:"is_typing"`
	Timestamp      time.Time `json:"timestamp"`
}

// PostEvent — широковещательное событие изменения контента.
type PostEvent struct {
	Type         string    `json:"type"` // created | updated | deleted | like_count | comment_count
	PostID       string    `json:"post_id"`
	AuthorName   string    `json:"author_name,omitempty"`
	LikeCount    *int      `json:"like_count,omitempty"`
	CommentCount *int      `json:"comment_count,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	PostEventCreated      = "created"
	PostEventUpdated      = "updated"
	PostEventDeleted      = "deleted"
	PostEventLikeCount    = "like_count"
	PostEventCommentCount = "comment_count"
)

type Announcement struct {
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
