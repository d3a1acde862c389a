package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mousti0113/class-social-media-sub001/internal/config"
	"github.com/mousti0113/class-social-media-sub001/internal/service"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене нужно проверять origin
	},
}

// WebSocketHandler поднимает realtime-канал: upgrade, приём кадров,
// конвейер интерцепторов и диспетчеризация по командам.
type WebSocketHandler struct {
	hub             *ws.Hub
	chain           *ws.Chain
	presenceService service.PresenceService
	typingService   service.TypingService
	cfg             config.WebSocketConfig
	log             logger.Logger
}

func NewWebSocketHandler(
	hub *ws.Hub,
	chain *ws.Chain,
	presenceService service.PresenceService,
	typingService service.TypingService,
	cfg config.WebSocketConfig,
	log logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:             hub,
		chain:           chain,
		presenceService: presenceService,
		typingService:   typingService,
		cfg:             cfg,
		log:             log,
	}
}

func (h *WebSocketHandler) Handle(c *gin.Context) {
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	sessionID := uuid.New().String()
	conn := ws.NewConn(sessionID, socket, c.Query("token"), h.cfg.SendBufferSize, h.cfg.WriteTimeout, h.log)

	h.log.Debug("WebSocket connection opened", "session_id", sessionID, "remote", c.ClientIP())

	go conn.WriteLoop(h.cfg.HeartbeatInterval)
	h.readLoop(c.Request.Context(), conn, socket)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *ws.Conn, socket *websocket.Conn) {
	defer func() {
		h.hub.Unregister(conn)
		if conn.IsAuthenticated() {
			h.presenceService.HandleDisconnect(ctx, conn.SessionID())
		}
		conn.Close()
		h.log.Debug("WebSocket connection closed", "session_id", conn.SessionID())
	}()

	socket.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Unexpected close", "session_id", conn.SessionID(), "error", err)
			}
			return
		}
		socket.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		frame, err := ws.ParseFrame(data)
		if err != nil {
			conn.Send(ws.NewErrorFrame("malformed frame"))
			continue
		}

		if err := h.chain.Process(ctx, conn, frame); err != nil {
			if errors.Is(err, ws.ErrRejectConnection) {
				// Кадр отказа пишется синхронно до закрытия сокета
				conn.CloseWithError("unauthorized")
				return
			}
			// ErrDropFrame: молча пропускаем
			continue
		}

		h.dispatch(ctx, conn, frame)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, conn *ws.Conn, frame *ws.Frame) {
	switch frame.Command {
	case ws.CommandConnect:
		h.handleConnect(ctx, conn)

	case ws.CommandSubscribe:
		if frame.Destination == "" {
			conn.Send(ws.NewErrorFrame("subscribe requires destination"))
			return
		}
		conn.AddSubscription(frame.Destination)
		h.presenceService.HandleSubscribe(conn.SessionID(), frame.Destination)

	case ws.CommandUnsubscribe:
		conn.RemoveSubscription(frame.Destination)
		h.presenceService.HandleUnsubscribe(conn.SessionID(), frame.Destination)

	case ws.CommandSend:
		h.handleSend(conn, frame)

	case ws.CommandPing:
		conn.Send(&ws.Frame{Command: ws.CommandPong})

	default:
		conn.Send(ws.NewErrorFrame("unsupported command: " + string(frame.Command)))
	}
}

func (h *WebSocketHandler) handleConnect(ctx context.Context, conn *ws.Conn) {
	// Интерцептор уже привязал личность; здесь регистрация и presence
	h.hub.Register(conn)
	h.presenceService.HandleConnect(ctx, conn.SessionID(), conn.Username())

	conn.Send(&ws.Frame{
		Command: ws.CommandConnected,
		Headers: map[string]string{
			"session":  conn.SessionID(),
			"username": conn.Username(),
		},
	})

	h.log.Info("WebSocket session established",
		"session_id", conn.SessionID(), "username", conn.Username())
}

type typingPayload struct {
	Recipient string `json:"recipient"`
	Typing    bool   `json:"typing"`
}

func (h *WebSocketHandler) handleSend(conn *ws.Conn, frame *ws.Frame) {
	switch frame.Destination {
	case ws.DestAppTyping:
		var payload typingPayload
		if err := json.Unmarshal(frame.Body, &payload); err != nil || payload.Recipient == "" {
			conn.Send(ws.NewErrorFrame("invalid typing payload"))
			return
		}
		if payload.Typing {
			h.typingService.SetTyping(conn.Username(), payload.Recipient)
		} else {
			h.typingService.ClearTyping(conn.Username(), payload.Recipient)
		}

	case ws.DestAppEcho:
		conn.Send(&ws.Frame{
			Command:     ws.CommandMessage,
			Destination: ws.DestAppEcho,
			Body:        frame.Body,
		})

	default:
		conn.Send(ws.NewErrorFrame("unknown destination: " + frame.Destination))
	}
}
