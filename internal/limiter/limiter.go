package limiter

import (
	"sync"
	"time"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

const (
	// Корзина без обращений дольше этого окна вытесняется из памяти.
	// После вытеснения следующий доступ создаёт её заново с полной ёмкостью.
	DefaultIdleTTL = 10 * time.Minute

	// Жёсткий потолок на количество корзин в памяти
	DefaultMaxEntries = 100_000
)

// Stats — агрегированная статистика хранилища корзин для admin-ручки.
type Stats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Denied    int64 `json:"denied"`
}

type bucket struct {
	mu           sync.Mutex
	tokens       int
	lastRefillAt time.Time
	lastAccessAt time.Time
	policy       domain.RateLimitPolicy
}

// refill пополняет корзину скачком до полной ёмкости, если период истёк.
// Вызывается только под b.mu.
func (b *bucket) refill(now time.Time) {
	if now.Sub(b.lastRefillAt) >= b.policy.RefillPeriod {
		b.tokens = b.policy.Capacity
		b.lastRefillAt = now
	}
}

// Store — потокобезопасное хранилище token-bucket корзин.
// Ключи не конкурируют между собой: мьютекс карты держится только
// на время поиска/вставки, операции над токенами идут под мьютексом корзины.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	idleTTL    time.Duration
	maxEntries int
	now        func() time.Time
	log        logger.Logger

	statsMu   sync.Mutex
	hits      int64
	misses    int64
	evictions int64
	denied    int64
}

type Option func(*Store)

// WithNow подменяет источник времени. Используется в тестах.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) { s.idleTTL = ttl }
}

func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

func NewStore(log logger.Logger, opts ...Option) *Store {
	s := &Store{
		buckets:    make(map[string]*bucket),
		idleTTL:    DefaultIdleTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func compositeKey(key string, op domain.OperationType) string {
	return key + "|" + string(op)
}

// TryConsume атомарно проверяет и списывает один токен.
// Возвращает false, если токенов нет или тип операции неизвестен.
func (s *Store) TryConsume(key string, op domain.OperationType) bool {
	b, ok := s.getOrCreate(key, op)
	if !ok {
		return false
	}

	now := s.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	b.lastAccessAt = now

	if b.tokens <= 0 {
		s.statsMu.Lock()
		s.denied++
		s.statsMu.Unlock()
		return false
	}

	b.tokens--
	return true
}

// Available возвращает текущий остаток токенов без списания.
// Для несуществующей корзины это полная ёмкость политики.
func (s *Store) Available(key string, op domain.OperationType) int {
	policy, ok := domain.PolicyFor(op)
	if !ok {
		return 0
	}

	s.mu.RLock()
	b, exists := s.buckets[compositeKey(key, op)]
	s.mu.RUnlock()

	if !exists {
		return policy.Capacity
	}

	now := s.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	// Чтение — тоже обращение: корзина не должна вытесниться как простаивающая
	b.lastAccessAt = now
	return b.tokens
}

// Reset немедленно удаляет корзину: следующий доступ начнёт с полной ёмкости.
// Только для административного вмешательства.
func (s *Store) Reset(key string, op domain.OperationType) {
	s.mu.Lock()
	delete(s.buckets, compositeKey(key, op))
	s.mu.Unlock()
}

// Cleanup вытесняет простаивающие корзины. Вызывается периодически извне.
func (s *Store) Cleanup() {
	now := s.now()
	var evicted int

	s.mu.Lock()
	for k, b := range s.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastAccessAt) >= s.idleTTL
		b.mu.Unlock()
		if idle {
			delete(s.buckets, k)
			evicted++
		}
	}
	s.mu.Unlock()

	if evicted > 0 {
		s.statsMu.Lock()
		s.evictions += int64(evicted)
		s.statsMu.Unlock()
		s.log.Debug("Evicted idle rate limit buckets", "count", evicted)
	}
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	size := len(s.buckets)
	s.mu.RUnlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		Size:      size,
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Denied:    s.denied,
	}
}

func (s *Store) getOrCreate(key string, op domain.OperationType) (*bucket, bool) {
	policy, ok := domain.PolicyFor(op)
	if !ok {
		s.log.Warn("Unknown rate limit operation type", "type", string(op))
		return nil, false
	}

	ck := compositeKey(key, op)

	s.mu.RLock()
	b, exists := s.buckets[ck]
	s.mu.RUnlock()

	if exists {
		s.statsMu.Lock()
		s.hits++
		s.statsMu.Unlock()
		return b, true
	}

	now := s.now()

	s.mu.Lock()
	// Повторная проверка: корзину мог создать конкурирующий вызов
	if b, exists = s.buckets[ck]; exists {
		s.mu.Unlock()
		s.statsMu.Lock()
		s.hits++
		s.statsMu.Unlock()
		return b, true
	}

	if len(s.buckets) >= s.maxEntries {
		s.evictOldestLocked()
	}

	b = &bucket{
		tokens:       policy.Capacity,
		lastRefillAt: now,
		lastAccessAt: now,
		policy:       policy,
	}
	s.buckets[ck] = b
	s.mu.Unlock()

	s.statsMu.Lock()
	s.misses++
	s.statsMu.Unlock()
	return b, true
}

// evictOldestLocked удаляет корзину с самым старым доступом.
// Вызывается только под s.mu.
func (s *Store) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for k, b := range s.buckets {
		b.mu.Lock()
		at := b.lastAccessAt
		b.mu.Unlock()
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey = k
			oldestAt = at
		}
	}

	if oldestKey != "" {
		delete(s.buckets, oldestKey)
		s.statsMu.Lock()
		s.evictions++
		s.statsMu.Unlock()
	}
}
