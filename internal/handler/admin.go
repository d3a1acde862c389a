package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/service"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// AdminHandler — служебные ручки для technical_admin: сброс rate limit
// корзин, просмотр остатков, объявления и состояние realtime-канала.
type AdminHandler struct {
	rateLimitService service.RateLimitService
	postService      service.PostService
	presenceService  service.PresenceService
	hub              *ws.Hub
	log              logger.Logger
}

func NewAdminHandler(
	rateLimitService service.RateLimitService,
	postService service.PostService,
	presenceService service.PresenceService,
	hub *ws.Hub,
	log logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		rateLimitService: rateLimitService,
		postService:      postService,
		presenceService:  presenceService,
		hub:              hub,
		log:              log,
	}
}

type ResetRateLimitRequest struct {
	Key           string `json:"key" binding:"required"`
	OperationType string `json:"operation_type" binding:"required"`
}

type AnnouncementRequest struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	var req ResetRateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	op, err := domain.ParseOperationType(req.OperationType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.rateLimitService.Reset(req.Key, op)
	h.log.Info("Rate limit reset by admin",
		"admin", c.GetString("username"), "key", req.Key, "type", req.OperationType)

	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// RateLimitTokens — остаток токенов по ключу и типу операции.
func (h *AdminHandler) RateLimitTokens(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key query parameter required"})
		return
	}

	op, err := domain.ParseOperationType(c.Query("operation_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, _ := domain.PolicyFor(op)
	c.JSON(http.StatusOK, gin.H{
		"key":       key,
		"type":      string(op),
		"available": h.rateLimitService.Available(key, op),
		"capacity":  policy.Capacity,
	})
}

func (h *AdminHandler) RateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.rateLimitService.Stats())
}

func (h *AdminHandler) Announce(c *gin.Context) {
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	h.postService.Announce(c.Request.Context(), req.Title, req.Text)
	h.log.Info("Announcement published", "admin", c.GetString("username"), "title", req.Title)

	c.JSON(http.StatusOK, gin.H{"status": "published"})
}

func (h *AdminHandler) Connections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections":  h.hub.ConnectionCount(),
		"online_users": h.presenceService.OnlineUsers(),
	})
}
