package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/service"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// routeOperations — статическая привязка маршрутов к типам операций.
// Всё, чего здесь нет, лимитируется как API_GENERAL.
var routeOperations = map[string]domain.OperationType{
	"POST /api/v1/auth/login":      domain.OpAuth,
	"POST /api/v1/auth/refresh":    domain.OpAuth,
	"POST /api/v1/posts":           domain.OpPostCreation,
	"POST /api/v1/posts/:id/like":  domain.OpLike,
	"POST /api/v1/messages":        domain.OpMessage,
	"POST /api/v1/messages/typing": domain.OpMessage,
}

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := operationFor(c)
		key := rateKey(c)

		if !m.rateLimitService.Allow(key, op) {
			retryAfter := m.rateLimitService.RetryAfterSeconds(op)
			m.log.Warn("Rate limit exceeded",
				"key", key, "type", string(op), "path", c.FullPath())

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			setLimitHeaders(c, m.rateLimitService, key, op)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":               "rate_limit_exceeded",
				"retry_after_seconds": retryAfter,
			})
			c.Abort()
			return
		}

		setLimitHeaders(c, m.rateLimitService, key, op)
		c.Next()
	}
}

func operationFor(c *gin.Context) domain.OperationType {
	if op, ok := routeOperations[c.Request.Method+" "+c.FullPath()]; ok {
		return op
	}
	return domain.OpAPIGeneral
}

// rateKey: аутентифицированные запросы считаются по пользователю,
// анонимные — по связке ip + session, чтобы общий NAT не делил одну корзину.
func rateKey(c *gin.Context) string {
	if username := c.GetString("username"); username != "" {
		return domain.UserRateKey(username)
	}
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		if cookie, err := c.Cookie("session_id"); err == nil {
			sessionID = cookie
		}
	}
	return domain.AnonymousRateKey(c.ClientIP(), sessionID)
}

func setLimitHeaders(c *gin.Context, svc service.RateLimitService, key string, op domain.OperationType) {
	policy, ok := domain.PolicyFor(op)
	if !ok {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Capacity))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(svc.Available(key, op)))
}
