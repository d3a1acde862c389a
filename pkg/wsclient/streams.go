package wsclient

import (
	"encoding/json"
	"strings"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

const streamBuffer = 32

// Streams — типизированные потоки входящих событий, размноженные
// по destination. Каждый поток потребляется независимо; ошибка разбора
// одного кадра не затрагивает остальные потоки.
type Streams struct {
	Notifications chan domain.Notification
	Messages      chan domain.DirectMessage
	Typing        chan domain.TypingEvent
	Presence      chan domain.PresenceEvent
	Posts         chan domain.PostEvent
	Announcements chan domain.Announcement
	Errors        chan string

	log logger.Logger
}

func newStreams(log logger.Logger) *Streams {
	return &Streams{
		Notifications: make(chan domain.Notification, streamBuffer),
		Messages:      make(chan domain.DirectMessage, streamBuffer),
		Typing:        make(chan domain.TypingEvent, streamBuffer),
		Presence:      make(chan domain.PresenceEvent, streamBuffer),
		Posts:         make(chan domain.PostEvent, streamBuffer),
		Announcements: make(chan domain.Announcement, streamBuffer),
		Errors:        make(chan string, streamBuffer),
		log:           log,
	}
}

func (s *Streams) dispatch(frame *ws.Frame) {
	if frame.Command == ws.CommandError {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(frame.Body, &payload)
		push(s.log, s.Errors, payload.Error, frame.Destination)
		return
	}
	if frame.Command != ws.CommandMessage {
		return
	}

	switch {
	case frame.Destination == ws.DestNotifications:
		decodeAndPush(s.log, s.Notifications, frame)
	case frame.Destination == ws.DestMessages:
		decodeAndPush(s.log, s.Messages, frame)
	case frame.Destination == ws.DestTyping:
		decodeAndPush(s.log, s.Typing, frame)
	case frame.Destination == ws.DestPosts:
		decodeAndPush(s.log, s.Posts, frame)
	case frame.Destination == ws.DestAnnouncements:
		decodeAndPush(s.log, s.Announcements, frame)
	case strings.HasPrefix(frame.Destination, ws.DestPresence):
		decodeAndPush(s.log, s.Presence, frame)
	default:
		s.log.Debug("Frame for unknown destination ignored", "destination", frame.Destination)
	}
}

// decodeAndPush изолирует сбой разбора рамками одного кадра.
func decodeAndPush[T any](log logger.Logger, ch chan T, frame *ws.Frame) {
	var v T
	if err := json.Unmarshal(frame.Body, &v); err != nil {
		log.Warn("Failed to decode frame body, frame skipped",
			"destination", frame.Destination, "error", err)
		return
	}
	push(log, ch, v, frame.Destination)
}

// push — доставка best-effort: при заполненном буфере событие отбрасывается,
// актуальное состояние клиент восстановит polling-запросом.
func push[T any](log logger.Logger, ch chan T, v T, destination string) {
	select {
	case ch <- v:
	default:
		log.Warn("Stream buffer full, event dropped", "destination", destination)
	}
}

// MergeMessages — согласование push и pull: pull определяет состояние,
// push дописывает сообщение только если его ещё нет по id.
func MergeMessages(local []*domain.DirectMessage, pushed *domain.DirectMessage) []*domain.DirectMessage {
	for _, m := range local {
		if m.ID == pushed.ID {
			return local
		}
	}
	return append(local, pushed)
}
