package ws

import (
	"strings"
	"sync"

	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// Hub раздаёт исходящие кадры по подключениям: персональные очереди —
// всем сессиям пользователя, топики — всем аутентифицированным подключениям.
// Сырая карта наружу не отдаётся, только атомарные операции.
type Hub struct {
	mu          sync.RWMutex
	bySession   map[string]*Conn
	byUsername  map[string]map[string]*Conn // username -> sessionID -> Conn
	log         logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		bySession:  make(map[string]*Conn),
		byUsername: make(map[string]map[string]*Conn),
		log:        log,
	}
}

// Register добавляет аутентифицированное подключение.
func (h *Hub) Register(conn *Conn) {
	username := conn.Username()

	h.mu.Lock()
	h.bySession[conn.SessionID()] = conn
	if h.byUsername[username] == nil {
		h.byUsername[username] = make(map[string]*Conn)
	}
	h.byUsername[username][conn.SessionID()] = conn
	h.mu.Unlock()
}

// Unregister удаляет подключение. Идемпотентен: удаляет только если
// зарегистрирован именно этот экземпляр.
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	registered, exists := h.bySession[conn.SessionID()]
	if !exists || registered != conn {
		return
	}

	delete(h.bySession, conn.SessionID())

	username := conn.Username()
	if sessions, ok := h.byUsername[username]; ok {
		delete(sessions, conn.SessionID())
		if len(sessions) == 0 {
			delete(h.byUsername, username)
		}
	}
}

// SendToUser доставляет кадр во все сессии пользователя.
func (h *Hub) SendToUser(username, destination string, body interface{}) {
	frame, err := NewMessageFrame(destination, body)
	if err != nil {
		h.log.Error("Failed to build frame", "destination", destination, "error", err)
		return
	}

	h.mu.RLock()
	sessions := make([]*Conn, 0, len(h.byUsername[username]))
	for _, conn := range h.byUsername[username] {
		sessions = append(sessions, conn)
	}
	h.mu.RUnlock()

	for _, conn := range sessions {
		conn.Send(frame)
	}
}

// Broadcast доставляет кадр всем подключениям. Кадры fire-and-forget.
func (h *Hub) Broadcast(destination string, body interface{}) {
	frame, err := NewMessageFrame(destination, body)
	if err != nil {
		h.log.Error("Failed to build frame", "destination", destination, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.bySession))
	for _, conn := range h.bySession {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Send(frame)
	}
}

// SendError отправляет ERROR-кадр в конкретную сессию.
// Используется только для ошибок аутентификации: rate-limit отказы
// намеренно не сигнализируются.
func (h *Hub) SendError(sessionID, message string) {
	h.mu.RLock()
	conn, ok := h.bySession[sessionID]
	h.mu.RUnlock()
	if ok {
		conn.Send(NewErrorFrame(message))
	}
}

// IsUserConnected — есть ли у пользователя хотя бы одна живая сессия.
func (h *Hub) IsUserConnected(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUsername[username]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySession)
}

// IsUserDestination — персональная ли это очередь (/user/queue/...).
func IsUserDestination(destination string) bool {
	return strings.HasPrefix(destination, "/user/queue/")
}
