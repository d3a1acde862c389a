package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mousti0113/class-social-media-sub001/internal/service"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type PresenceHandler struct {
	presenceService service.PresenceService
	log             logger.Logger
}

func NewPresenceHandler(presenceService service.PresenceService, log logger.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		log:             log,
	}
}

func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	users := h.presenceService.OnlineUsers()
	c.JSON(http.StatusOK, gin.H{
		"online": users,
		"count":  len(users),
	})
}

func (h *PresenceHandler) UserStatus(c *gin.Context) {
	username := c.Param("username")
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"online":   h.presenceService.IsOnline(username),
	})
}

func (h *PresenceHandler) ActiveSessions(c *gin.Context) {
	sessions, err := h.presenceService.ActiveSessions(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load active sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load active sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
