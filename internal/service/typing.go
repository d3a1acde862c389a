package service

import (
	"sync"
	"time"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// Индикатор "печатает" живёт 3 секунды и продлевается каждым setTyping
const TypingTTL = 3 * time.Second

// TypingService — короткоживущее состояние "кто кому печатает".
// Только память процесса; истечение проверяется лениво при чтении,
// фоновой чистки нет. Push и polling видят одно и то же состояние.
type TypingService interface {
	SetTyping(senderUsername, recipientUsername string)
	ClearTyping(senderUsername, recipientUsername string)
	IsTyping(senderUsername, recipientUsername string) bool
}

type typingKey struct {
	sender    string
	recipient string
}

type typingService struct {
	mu        sync.RWMutex
	typing    map[typingKey]time.Time
	publisher EventPublisher
	ttl       time.Duration
	now       func() time.Time
	log       logger.Logger
}

func NewTypingService(publisher EventPublisher, log logger.Logger) TypingService {
	return &typingService{
		typing:    make(map[typingKey]time.Time),
		publisher: publisher,
		ttl:       TypingTTL,
		now:       time.Now,
		log:       log,
	}
}

// newTypingServiceWithNow — конструктор для тестов с управляемым временем.
func newTypingServiceWithNow(publisher EventPublisher, now func() time.Time, log logger.Logger) *typingService {
	return &typingService{
		typing:    make(map[typingKey]time.Time),
		publisher: publisher,
		ttl:       TypingTTL,
		now:       now,
		log:       log,
	}
}

func (s *typingService) SetTyping(senderUsername, recipientUsername string) {
	now := s.now()

	s.mu.Lock()
	s.typing[typingKey{senderUsername, recipientUsername}] = now
	s.mu.Unlock()

	// Push — оптимизация задержки; авторитетно polling-чтение IsTyping
	s.publisher.SendToUser(recipientUsername, ws.DestTyping, domain.TypingEvent{
		SenderUsername: senderUsername,
		IsTyping:       true,
		Timestamp:      now,
	})
}

func (s *typingService) ClearTyping(senderUsername, recipientUsername string) {
	s.mu.Lock()
	delete(s.typing, typingKey{senderUsername, recipientUsername})
	s.mu.Unlock()

	s.publisher.SendToUser(recipientUsername, ws.DestTyping, domain.TypingEvent{
		SenderUsername: senderUsername,
		IsTyping:       false,
		Timestamp:      s.now(),
	})
}

func (s *typingService) IsTyping(senderUsername, recipientUsername string) bool {
	s.mu.RLock()
	at, ok := s.typing[typingKey{senderUsername, recipientUsername}]
	s.mu.RUnlock()

	if !ok {
		return false
	}
	return s.now().Sub(at) < s.ttl
}
