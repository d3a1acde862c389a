package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// Conn — одно клиентское realtime-подключение.
// Все исходящие кадры проходят через единственную writer-горутину,
// поэтому порядок доставки на подключение сохраняется.
type Conn struct {
	sessionID  string
	ws         *websocket.Conn
	send       chan *Frame
	closeOnce  sync.Once
	done       chan struct{}
	writerDone chan struct{}
	writeTO    time.Duration
	log        logger.Logger

	mu            sync.RWMutex
	username      string
	role          string
	cohortID      *string
	authenticated bool
	subscriptions map[string]struct{}

	// Токен из query-параметра при upgrade; используется AuthInterceptor,
	// если CONNECT-кадр не принёс Authorization-заголовок
	connectToken string
}

func NewConn(sessionID string, ws *websocket.Conn, connectToken string, sendBuffer int, writeTimeout time.Duration, log logger.Logger) *Conn {
	return &Conn{
		sessionID:     sessionID,
		ws:            ws,
		send:          make(chan *Frame, sendBuffer),
		done:          make(chan struct{}),
		writerDone:    make(chan struct{}),
		writeTO:       writeTimeout,
		log:           log,
		subscriptions: make(map[string]struct{}),
		connectToken:  connectToken,
	}
}

func (c *Conn) SessionID() string { return c.sessionID }

func (c *Conn) ConnectToken() string { return c.connectToken }

// SetIdentity привязывает проверенную личность к подключению на весь срок его жизни.
func (c *Conn) SetIdentity(username, role string, cohortID *string) {
	c.mu.Lock()
	c.username = username
	c.role = role
	c.cohortID = cohortID
	c.authenticated = true
	c.mu.Unlock()
}

func (c *Conn) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Conn) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Conn) CohortID() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cohortID
}

func (c *Conn) AddSubscription(destination string) {
	c.mu.Lock()
	c.subscriptions[destination] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) RemoveSubscription(destination string) {
	c.mu.Lock()
	delete(c.subscriptions, destination)
	c.mu.Unlock()
}

func (c *Conn) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

// Send ставит кадр в очередь на отправку. Доставка best-effort:
// при переполненном буфере или закрытом подключении кадр отбрасывается —
// клиент сверит состояние через polling.
func (c *Conn) Send(frame *Frame) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.log.Warn("Send buffer full, dropping frame",
			"session_id", c.sessionID, "destination", frame.Destination)
	}
}

// WriteLoop — единственный писатель в сокет. Завершается при Close
// или ошибке записи. ping поддерживает соединение живым.
func (c *Conn) WriteLoop(heartbeatInterval time.Duration) {
	defer close(c.writerDone)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			data, err := json.Marshal(frame)
			if err != nil {
				c.log.Error("Failed to marshal outbound frame", "error", err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTO))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("Write failed, closing connection",
					"session_id", c.sessionID, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTO))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close синхронно помечает подключение закрытым и закрывает сокет.
// Идемпотентен.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// CloseWithError доставляет клиенту ERROR-кадр и закрывает подключение.
// Останавливает writer и дожидается его выхода, после чего запись в сокет
// безопасна из вызывающей горутины: кадр отказа уходит до закрытия,
// без гонки с WriteLoop. Требует запущенного WriteLoop.
func (c *Conn) CloseWithError(message string) {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.writerDone

		data, err := json.Marshal(NewErrorFrame(message))
		if err == nil {
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTO))
			_ = c.ws.WriteMessage(websocket.TextMessage, data)
		}
		_ = c.ws.Close()
	})
}

func (c *Conn) Done() <-chan struct{} { return c.done }
