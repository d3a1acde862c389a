package limiter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

// manualClock — управляемое время для детерминированных тестов без time.Sleep.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(clk *manualClock, opts ...Option) *Store {
	opts = append([]Option{WithNow(clk.Now)}, opts...)
	return NewStore(logger.NewNop(), opts...)
}

func TestTryConsumeExhaustsExactlyAtCapacity(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	// AUTH: 5 токенов в минуту — первые 5 проходят, шестой нет
	for i := 0; i < 5; i++ {
		if !s.TryConsume("user:alice", domain.OpAuth) {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if s.TryConsume("user:alice", domain.OpAuth) {
		t.Fatal("call 6 should be denied")
	}
}

func TestAvailableNeverExceedsCapacityAndNeverNegative(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	for _, op := range []domain.OperationType{domain.OpAuth, domain.OpLike, domain.OpWebSocket} {
		policy, _ := domain.PolicyFor(op)

		if got := s.Available("user:bob", op); got != policy.Capacity {
			t.Errorf("%s: fresh bucket available = %d, want %d", op, got, policy.Capacity)
		}

		// Исчерпываем и продолжаем дёргать — остаток не должен уйти в минус
		for i := 0; i < policy.Capacity+10; i++ {
			s.TryConsume("user:bob", op)
		}
		if got := s.Available("user:bob", op); got != 0 {
			t.Errorf("%s: exhausted bucket available = %d, want 0", op, got)
		}

		// Несколько периодов подряд — остаток не превышает ёмкость
		clk.Advance(5 * policy.RefillPeriod)
		if got := s.Available("user:bob", op); got != policy.Capacity {
			t.Errorf("%s: after refill available = %d, want %d", op, got, policy.Capacity)
		}
	}
}

func TestRefillIsIntervalJumpNotContinuous(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	for i := 0; i < 5; i++ {
		s.TryConsume("user:carol", domain.OpAuth)
	}

	// Половина периода: пополнения нет вообще
	clk.Advance(30 * time.Second)
	if got := s.Available("user:carol", domain.OpAuth); got != 0 {
		t.Fatalf("mid-interval available = %d, want 0", got)
	}

	// Полный период: возврат сразу к полной ёмкости
	clk.Advance(30 * time.Second)
	if got := s.Available("user:carol", domain.OpAuth); got != 5 {
		t.Fatalf("after full interval available = %d, want 5", got)
	}
}

func TestResetRestoresFullCapacity(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	for i := 0; i < 6; i++ {
		s.TryConsume("user:dave", domain.OpAuth)
	}
	if s.TryConsume("user:dave", domain.OpAuth) {
		t.Fatal("bucket should be exhausted before reset")
	}

	s.Reset("user:dave", domain.OpAuth)

	if !s.TryConsume("user:dave", domain.OpAuth) {
		t.Fatal("consume right after reset should succeed")
	}
	if got := s.Available("user:dave", domain.OpAuth); got != 4 {
		t.Fatalf("available after reset+consume = %d, want 4", got)
	}
}

func TestKeysDoNotInterfere(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	for i := 0; i < 5; i++ {
		s.TryConsume("user:eve", domain.OpAuth)
	}
	if s.TryConsume("user:eve", domain.OpAuth) {
		t.Fatal("eve should be exhausted")
	}
	if !s.TryConsume("user:frank", domain.OpAuth) {
		t.Fatal("frank has his own bucket")
	}
	// Тот же ключ, другой тип операции — отдельная корзина
	if !s.TryConsume("user:eve", domain.OpMessage) {
		t.Fatal("different operation type has its own bucket")
	}
}

func TestUnknownOperationTypeDenied(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	if s.TryConsume("user:x", domain.OperationType("BOGUS")) {
		t.Fatal("unknown operation type must be denied")
	}
	if got := s.Available("user:x", domain.OperationType("BOGUS")); got != 0 {
		t.Fatalf("available for unknown type = %d, want 0", got)
	}
}

func TestConcurrentConsumeNoOverAdmit(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	// API_GENERAL: 100 токенов. 50 горутин по 10 попыток = 500 попыток,
	// пройти должны ровно 100.
	var allowed int64
	var wg sync.WaitGroup
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if s.TryConsume("user:grace", domain.OpAPIGeneral) {
					atomic.AddInt64(&allowed, 1)
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Fatalf("allowed = %d, want exactly 100", allowed)
	}
}

func TestIdleBucketsEvicted(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk, WithIdleTTL(10*time.Minute))

	for i := 0; i < 5; i++ {
		s.TryConsume("user:henry", domain.OpAuth)
	}

	clk.Advance(11 * time.Minute)
	s.Cleanup()

	if got := s.Stats().Size; got != 0 {
		t.Fatalf("store size after cleanup = %d, want 0", got)
	}

	// Вытеснение теряет накопленное состояние: корзина создаётся заново полной
	if !s.TryConsume("user:henry", domain.OpAuth) {
		t.Fatal("access after eviction should start from full capacity")
	}
	if got := s.Available("user:henry", domain.OpAuth); got != 4 {
		t.Fatalf("available = %d, want 4", got)
	}
}

func TestAvailableKeepsBucketWarm(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk, WithIdleTTL(10*time.Minute))

	for i := 0; i < 3; i++ {
		s.TryConsume("user:ivan", domain.OpAuth)
	}

	// Просмотр остатка без списания — тоже обращение:
	// корзина под периодической инспекцией не должна вытесняться
	clk.Advance(6 * time.Minute)
	if got := s.Available("user:ivan", domain.OpAuth); got != 5 {
		t.Fatalf("available = %d, want 5 (period elapsed, bucket refilled)", got)
	}

	clk.Advance(6 * time.Minute)
	s.Cleanup()

	if got := s.Stats().Size; got != 1 {
		t.Fatalf("store size after cleanup = %d, want 1 (bucket kept warm by Available)", got)
	}
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk, WithMaxEntries(3))

	s.TryConsume("user:a", domain.OpAuth)
	clk.Advance(time.Second)
	s.TryConsume("user:b", domain.OpAuth)
	clk.Advance(time.Second)
	s.TryConsume("user:c", domain.OpAuth)
	clk.Advance(time.Second)

	// Четвёртый ключ вытесняет самый старый (user:a)
	s.TryConsume("user:d", domain.OpAuth)

	stats := s.Stats()
	if stats.Size != 3 {
		t.Fatalf("store size = %d, want 3", stats.Size)
	}
	if stats.Evictions != 1 {
		t.Fatalf("evictions = %d, want 1", stats.Evictions)
	}
}

func TestStatsCounters(t *testing.T) {
	clk := newManualClock()
	s := newTestStore(clk)

	s.TryConsume("user:z", domain.OpAuth) // miss (создание)
	s.TryConsume("user:z", domain.OpAuth) // hit

	stats := s.Stats()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("hits = %d, want 1", stats.Hits)
	}

	for i := 0; i < 10; i++ {
		s.TryConsume("user:z", domain.OpAuth)
	}
	if got := s.Stats().Denied; got != 7 {
		t.Errorf("denied = %d, want 7", got)
	}
}
