package service

import (
	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/internal/limiter"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// RateLimitService — общий лимитер для HTTP и realtime-канала.
// Один и тот же пул корзин консультируют middleware, интерцептор
// и admin-ручки.
type RateLimitService interface {
	Allow(key string, op domain.OperationType) bool
	Available(key string, op domain.OperationType) int
	Reset(key string, op domain.OperationType)
	Stats() limiter.Stats
	// RetryAfterSeconds — подсказка клиенту при отказе
	RetryAfterSeconds(op domain.OperationType) int
}

type rateLimitService struct {
	store *limiter.Store
	log   logger.Logger
}

func NewRateLimitService(store *limiter.Store, log logger.Logger) RateLimitService {
	return &rateLimitService{store: store, log: log}
}

func (s *rateLimitService) Allow(key string, op domain.OperationType) bool {
	return s.store.TryConsume(key, op)
}

func (s *rateLimitService) Available(key string, op domain.OperationType) int {
	return s.store.Available(key, op)
}

func (s *rateLimitService) Reset(key string, op domain.OperationType) {
	s.log.Info("Rate limit bucket reset", "key", key, "type", string(op))
	s.store.Reset(key, op)
}

func (s *rateLimitService) Stats() limiter.Stats {
	return s.store.Stats()
}

func (s *rateLimitService) RetryAfterSeconds(op domain.OperationType) int {
	policy, ok := domain.PolicyFor(op)
	if !ok {
		return 60
	}
	// Худший случай при интервальном пополнении — ждать весь период
	return int(policy.RefillPeriod.Seconds())
}
