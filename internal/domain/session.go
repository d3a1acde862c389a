package domain

import (
	"time"
)

// PresenceSession — долговременное зеркало realtime-подключения.
// Создаётся при первом CONNECT для session_id, дальше обновляется на месте.
// Авторитетным источником остаётся in-memory карта presence-трекера:
// эта запись нужна только для отображения "кто онлайн" между рестартами.
type PresenceSession struct {
	SessionID      string    `json:"session_id"`
	Username       string    `json:"username"`
	IsOnline       bool      `json:"is_online"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ConnectedAt    time.Time `json:"connected_at"`
}

// IsActive — сессия активна, только если она online и активность была недавно.
// Защита от "зависших" online-строк после обрыва связи без disconnect-события.
func (s *PresenceSession) IsActive(now time.Time, window time.Duration) bool {
	return s.IsOnline && now.Sub(s.LastActivityAt) < window
}
