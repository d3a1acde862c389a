package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// State — состояние машины переподключения.
type State string

const (
	StateDisconnected       State = "DISCONNECTED"
	StateConnecting         State = "CONNECTING"
	StateConnected          State = "CONNECTED"
	StateReconnectScheduled State = "RECONNECT_SCHEDULED"
	StateGivenUp            State = "GIVEN_UP"
)

// Transport — абстракция над фреймовым транспортом; в тестах подменяется.
type Transport interface {
	ReadFrame() (*ws.Frame, error)
	WriteFrame(frame *ws.Frame) error
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Transport, error)

type Config struct {
	URL   string
	Token string

	// Параметры экспоненциального backoff
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int

	HeartbeatInterval time.Duration
	PongTimeout       time.Duration

	// Destination, на которые клиент подписывается после CONNECTED
	Subscriptions []string
}

func (c *Config) withDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []string{
			ws.DestNotifications,
			ws.DestMessages,
			ws.DestTyping,
			ws.DestErrors,
			ws.DestAnnouncements,
			ws.DestPosts,
			ws.DestPresence,
		}
	}
}

// Client держит единственное realtime-подключение и переподключается
// с экспоненциальным backoff. После исчерпания попыток останавливается
// в терминальном состоянии, из которого возможен только ручной Reconnect.
type Client struct {
	cfg   Config
	dial  DialFunc
	sleep func(time.Duration)
	log   logger.Logger

	mu      sync.Mutex
	state   State
	attempt int
	active  Transport

	reconnect chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	streams *Streams
}

type Option func(*Client)

// WithDial подменяет установку соединения; используется тестами.
func WithDial(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// WithSleep подменяет ожидание между попытками; используется тестами.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

func New(cfg Config, log logger.Logger, opts ...Option) *Client {
	cfg.withDefaults()
	c := &Client{
		cfg:       cfg,
		dial:      defaultDial,
		sleep:     time.Sleep,
		log:       log,
		state:     StateDisconnected,
		reconnect: make(chan struct{}, 1),
		closed:    make(chan struct{}),
		streams:   newStreams(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Streams() *Streams { return c.streams }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Reconnect — ручной перезапуск из терминального состояния.
func (c *Client) Reconnect() {
	c.mu.Lock()
	if c.state != StateGivenUp {
		c.mu.Unlock()
		return
	}
	c.attempt = 0
	c.mu.Unlock()

	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Run гоняет машину переподключения до Close или отмены контекста.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-c.closed:
			c.setState(StateDisconnected)
			return
		default:
		}

		c.setState(StateConnecting)
		transport, err := c.dial(ctx, c.cfg.URL)
		if err == nil {
			err = c.session(ctx, transport)
		}

		if ctx.Err() != nil || c.isClosed() {
			c.setState(StateDisconnected)
			return
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		c.mu.Unlock()

		if attempt >= c.cfg.MaxAttempts {
			c.log.Warn("Reconnect attempts exhausted, giving up",
				"attempts", attempt, "error", err)
			c.setState(StateGivenUp)

			// Дальше только вручную
			select {
			case <-ctx.Done():
				c.setState(StateDisconnected)
				return
			case <-c.closed:
				c.setState(StateDisconnected)
				return
			case <-c.reconnect:
				continue
			}
		}

		c.setState(StateReconnectScheduled)
		delay := backoffDelay(c.cfg.BaseDelay, c.cfg.MaxDelay, c.cfg.Multiplier, attempt-1)
		c.log.Debug("Reconnect scheduled", "attempt", attempt, "delay", delay.String(), "error", err)
		c.sleep(delay)
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// session ведёт одно подключение от CONNECT до ошибки транспорта.
func (c *Client) session(ctx context.Context, transport Transport) error {
	defer transport.Close()

	connect := &ws.Frame{
		Command: ws.CommandConnect,
		Headers: map[string]string{"Authorization": "Bearer " + c.cfg.Token},
	}
	if err := transport.WriteFrame(connect); err != nil {
		return fmt.Errorf("failed to send connect frame: %w", err)
	}

	reply, err := transport.ReadFrame()
	if err != nil {
		return fmt.Errorf("failed to read connect reply: %w", err)
	}
	if reply.Command != ws.CommandConnected {
		return fmt.Errorf("connection rejected: %s", reply.Command)
	}

	for _, destination := range c.cfg.Subscriptions {
		sub := &ws.Frame{Command: ws.CommandSubscribe, Destination: destination}
		if err := transport.WriteFrame(sub); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", destination, err)
		}
	}

	// Полностью успешное переподключение: только здесь счётчик попыток
	// возвращается к нулю
	c.mu.Lock()
	c.attempt = 0
	c.active = transport
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}()
	c.setState(StateConnected)
	c.log.Info("Connected", "url", c.cfg.URL)

	var lastPong atomic.Int64
	lastPong.Store(time.Now().UnixNano())

	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	go c.heartbeat(transport, &lastPong, stopHeartbeat)

	for {
		frame, err := transport.ReadFrame()
		if err != nil {
			return err
		}
		if frame.Command == ws.CommandPong {
			lastPong.Store(time.Now().UnixNano())
			continue
		}
		c.streams.dispatch(frame)
	}
}

// heartbeat шлёт PING с фиксированным интервалом; отсутствие PONG дольше
// порога трактуется как сбой транспорта — Close обрывает чтение,
// и срабатывает общий путь переподключения.
func (c *Client) heartbeat(transport Transport, lastPong *atomic.Int64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.closed:
			transport.Close()
			return
		case <-ticker.C:
			silence := time.Since(time.Unix(0, lastPong.Load()))
			if silence > c.cfg.PongTimeout {
				c.log.Warn("Heartbeat timeout, closing transport", "silence", silence.String())
				transport.Close()
				return
			}
			if err := transport.WriteFrame(&ws.Frame{Command: ws.CommandPing}); err != nil {
				transport.Close()
				return
			}
		}
	}
}

// SendTyping сигнализирует набор текста через активное подключение.
func (c *Client) SendTyping(recipient string, typing bool) error {
	c.mu.Lock()
	transport := c.active
	c.mu.Unlock()
	if transport == nil {
		return apperrors.ErrNotConnected
	}

	body, err := json.Marshal(map[string]interface{}{
		"recipient": recipient,
		"typing":    typing,
	})
	if err != nil {
		return err
	}
	return transport.WriteFrame(&ws.Frame{
		Command:     ws.CommandSend,
		Destination: ws.DestAppTyping,
		Body:        body,
	})
}

// wsTransport — боевой транспорт поверх gorilla/websocket.
type wsTransport struct {
	conn *websocket.Conn
}

func defaultDial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadFrame() (*ws.Frame, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return ws.ParseFrame(data)
}

func (t *wsTransport) WriteFrame(frame *ws.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
