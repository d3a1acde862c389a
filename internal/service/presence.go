package service

import (
	"context"
	"sync"
	"time"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/repository"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// PresenceService отслеживает realtime-подключения.
// Авторитетный источник — in-memory карта session_id -> username;
// строка в БД лишь best-effort зеркало для отображения между рестартами.
type PresenceService interface {
	HandleConnect(ctx context.Context, sessionID, username string)
	HandleDisconnect(ctx context.Context, sessionID string)
	// HandleSubscribe/HandleUnsubscribe — только диагностика, presence не меняют
	HandleSubscribe(sessionID, destination string)
	HandleUnsubscribe(sessionID, destination string)
	IsOnline(username string) bool
	OnlineUsers() []string
	// ActiveSessions — сессии online с недавней активностью (из зеркала)
	ActiveSessions(ctx context.Context) ([]*domain.PresenceSession, error)
	CleanupInactive(ctx context.Context)
}

type presenceService struct {
	mu          sync.RWMutex
	connections map[string]string // session_id -> username

	sessionRepo  repository.PresenceSessionRepository
	userRepo     repository.UserRepository
	publisher    EventPublisher
	activeWindow time.Duration
	now          func() time.Time
	log          logger.Logger
}

func NewPresenceService(
	sessionRepo repository.PresenceSessionRepository,
	userRepo repository.UserRepository,
	publisher EventPublisher,
	activeWindow time.Duration,
	log logger.Logger,
) PresenceService {
	return &presenceService{
		connections:  make(map[string]string),
		sessionRepo:  sessionRepo,
		userRepo:     userRepo,
		publisher:    publisher,
		activeWindow: activeWindow,
		now:          time.Now,
		log:          log,
	}
}

func (s *presenceService) HandleConnect(ctx context.Context, sessionID, username string) {
	now := s.now()

	s.mu.Lock()
	s.connections[sessionID] = username
	s.mu.Unlock()

	// Запись в БД вне критической секции: карта уже отражает подключение,
	// сбой зеркала не должен помешать connect-обработке
	if err := s.sessionRepo.Upsert(ctx, sessionID, username, true, now); err != nil {
		s.log.Warn("Failed to mirror presence connect",
			"session_id", sessionID, "username", username, "error", err)
	}

	s.broadcastPresence(ctx, username, domain.PresenceOnline, now)

	s.log.Info("User connected", "session_id", sessionID, "username", username)
}

func (s *presenceService) HandleDisconnect(ctx context.Context, sessionID string) {
	s.mu.Lock()
	username, exists := s.connections[sessionID]
	if exists {
		delete(s.connections, sessionID)
	}
	s.mu.Unlock()

	if !exists {
		// Disconnect без connect (отклонённая аутентификация) — не событие
		return
	}

	now := s.now()
	if err := s.sessionRepo.Upsert(ctx, sessionID, username, false, now); err != nil {
		s.log.Warn("Failed to mirror presence disconnect",
			"session_id", sessionID, "username", username, "error", err)
	}

	s.broadcastPresence(ctx, username, domain.PresenceOffline, now)

	s.log.Info("User disconnected", "session_id", sessionID, "username", username)
}

// broadcastPresence рассылает presence-дельту в когортный и глобальный топики.
// Любой сбой (lookup, публикация) логируется и глотается.
func (s *presenceService) broadcastPresence(ctx context.Context, username, eventType string, at time.Time) {
	event := domain.PresenceEvent{
		Type:      eventType,
		Username:  username,
		Timestamp: at,
	}

	user, err := s.userRepo.GetActiveByUsername(ctx, username)
	if err != nil {
		s.log.Warn("Presence broadcast user lookup failed", "username", username, "error", err)
	} else if user.CohortID != nil {
		event.CohortID = user.CohortID
		s.publisher.Broadcast(ws.CohortPresenceDest(*user.CohortID), event)
	}

	// Глобальный топик остаётся для старых клиентов
	s.publisher.Broadcast(ws.DestPresence, event)
}

func (s *presenceService) HandleSubscribe(sessionID, destination string) {
	s.log.Debug("Subscription added", "session_id", sessionID, "destination", destination)
}

func (s *presenceService) HandleUnsubscribe(sessionID, destination string) {
	s.log.Debug("Subscription removed", "session_id", sessionID, "destination", destination)
}

func (s *presenceService) IsOnline(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.connections {
		if u == username {
			return true
		}
	}
	return false
}

func (s *presenceService) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.connections))
	users := make([]string, 0, len(s.connections))
	for _, u := range s.connections {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			users = append(users, u)
		}
	}
	return users
}

func (s *presenceService) ActiveSessions(ctx context.Context) ([]*domain.PresenceSession, error) {
	return s.sessionRepo.ListActive(ctx, s.activeWindow)
}

func (s *presenceService) CleanupInactive(ctx context.Context) {
	deleted, err := s.sessionRepo.DeleteInactive(ctx, s.activeWindow)
	if err != nil {
		s.log.Warn("Presence session cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		s.log.Info("Cleaned up inactive presence sessions", "count", deleted)
	}
}
