package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mousti0113/class-social-media-sub001/internal/middleware"
	"github.com/mousti0113/class-social-media-sub001/internal/service"
	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type MessageHandler struct {
	messageService service.MessageService
	typingService  service.TypingService
	log            logger.Logger
}

func NewMessageHandler(messageService service.MessageService, typingService service.TypingService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		typingService:  typingService,
		log:            log,
	}
}

type SendMessageRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

type TypingRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Typing    bool   `json:"typing"`
}

func (h *MessageHandler) Send(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	message, err := h.messageService.Send(c.Request.Context(), user, req.Recipient, req.Content)
	if err != nil {
		status := apperrors.HTTPStatusFromError(err)
		if status == http.StatusInternalServerError {
			// Внутренние детали наружу не отдаём
			h.log.Error("Failed to send message", "error", err, "sender", user.Username)
			c.JSON(status, gin.H{"error": "Failed to send message"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) ListConversation(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	messages, err := h.messageService.ListConversation(c.Request.Context(), user.ID, c.Param("username"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := h.messageService.MarkConversationRead(c.Request.Context(), user.ID, c.Param("username")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark conversation read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	count, err := h.messageService.CountUnread(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// SetTyping — HTTP-вариант typing-индикатора. Тот же стор, что и у
// realtime-канала, поэтому push и polling видят одно состояние.
func (h *MessageHandler) SetTyping(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Typing {
		h.typingService.SetTyping(user.Username, req.Recipient)
	} else {
		h.typingService.ClearTyping(user.Username, req.Recipient)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetTyping — polling-опрос: печатает ли собеседник мне прямо сейчас.
func (h *MessageHandler) GetTyping(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	other := c.Param("username")
	c.JSON(http.StatusOK, gin.H{
		"username": other,
		"typing":   h.typingService.IsTyping(other, user.Username),
	})
}
