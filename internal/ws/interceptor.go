package ws

import (
	"context"
	"errors"
	"strings"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// Ошибки конвейера. ErrDropFrame — кадр молча отбрасывается
// (отказ rate limit не сигнализируется отправителю), ErrRejectConnection —
// подключение разрывается с ERROR-кадром (ошибки аутентификации).
var (
	ErrDropFrame        = errors.New("frame dropped")
	ErrRejectConnection = errors.New("connection rejected")
)

// TokenVerifier — проверка bearer-токена. Реализуется auth-сервисом.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
}

// FrameLimiter — консультация лимитера перед доставкой кадра.
type FrameLimiter interface {
	Allow(key string, op domain.OperationType) bool
}

// Interceptor — одна стадия конвейера обработки входящих кадров.
type Interceptor interface {
	Name() string
	Intercept(ctx context.Context, conn *Conn, frame *Frame) error
}

// Chain — упорядоченный конвейер: каждый входящий кадр проходит все стадии
// по порядку. Порядок значим: аутентификация стоит раньше rate limiting,
// неаутентифицированный кадр не должен ни списать токен, ни дойти до логики.
type Chain struct {
	interceptors []Interceptor
	log          logger.Logger
}

func NewChain(log logger.Logger, interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors, log: log}
}

func (c *Chain) Process(ctx context.Context, conn *Conn, frame *Frame) error {
	for _, ic := range c.interceptors {
		if err := ic.Intercept(ctx, conn, frame); err != nil {
			if errors.Is(err, ErrDropFrame) {
				c.log.Debug("Frame dropped by interceptor",
					"interceptor", ic.Name(), "session_id", conn.SessionID(),
					"command", string(frame.Command))
			}
			return err
		}
	}
	return nil
}

// AuthInterceptor аутентифицирует CONNECT-кадры и отклоняет всё остальное
// на неаутентифицированном подключении. Токен берётся из заголовка
// Authorization кадра либо из query-параметра token при upgrade.
type AuthInterceptor struct {
	verifier TokenVerifier
	log      logger.Logger
}

func NewAuthInterceptor(verifier TokenVerifier, log logger.Logger) *AuthInterceptor {
	return &AuthInterceptor{verifier: verifier, log: log}
}

func (i *AuthInterceptor) Name() string { return "auth" }

func (i *AuthInterceptor) Intercept(ctx context.Context, conn *Conn, frame *Frame) error {
	if frame.Command == CommandConnect {
		// Повторный CONNECT на аутентифицированном подключении игнорируем
		if conn.IsAuthenticated() {
			return nil
		}

		token := extractBearer(frame.Headers["Authorization"])
		if token == "" {
			token = conn.ConnectToken()
		}
		if token == "" {
			i.log.Warn("CONNECT without credentials", "session_id", conn.SessionID())
			return ErrRejectConnection
		}

		user, err := i.verifier.ValidateToken(ctx, token)
		if err != nil {
			i.log.Warn("CONNECT with invalid token",
				"session_id", conn.SessionID(), "error", err)
			return ErrRejectConnection
		}

		// Личность привязывается к подключению на весь срок сессии,
		// последующие кадры токен повторно не проверяют
		conn.SetIdentity(user.Username, user.GlobalRole, user.CohortID)
		return nil
	}

	if !conn.IsAuthenticated() {
		i.log.Warn("Frame on unauthenticated connection",
			"session_id", conn.SessionID(), "command", string(frame.Command))
		return ErrRejectConnection
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// RateLimitInterceptor списывает токен WEBSOCKET-корзины за каждый SEND.
// Отказ — молчаливый drop без ответного кадра.
type RateLimitInterceptor struct {
	limiter FrameLimiter
	log     logger.Logger
}

func NewRateLimitInterceptor(limiter FrameLimiter, log logger.Logger) *RateLimitInterceptor {
	return &RateLimitInterceptor{limiter: limiter, log: log}
}

func (i *RateLimitInterceptor) Name() string { return "rate_limit" }

func (i *RateLimitInterceptor) Intercept(ctx context.Context, conn *Conn, frame *Frame) error {
	if frame.Command != CommandSend {
		return nil
	}

	key := domain.WebSocketRateKey(conn.Username())
	if !i.limiter.Allow(key, domain.OpWebSocket) {
		i.log.Debug("WebSocket frame rate limited", "key", key)
		return ErrDropFrame
	}
	return nil
}
