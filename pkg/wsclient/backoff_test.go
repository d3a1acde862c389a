package wsclient

import (
	"testing"
	"time"
)

func TestBaseBackoffGrowsAndCaps(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second

	var prev time.Duration
	for attempt := 0; attempt < 12; attempt++ {
		delay := baseBackoff(base, max, 2, attempt)
		if delay < prev {
			t.Fatalf("attempt %d: delay %v < previous %v, backoff must be non-decreasing", attempt, delay, prev)
		}
		if delay > max {
			t.Fatalf("attempt %d: delay %v exceeds max %v", attempt, delay, max)
		}
		prev = delay
	}

	// Достаточно поздняя попытка упирается в потолок
	if got := baseBackoff(base, max, 2, 20); got != max {
		t.Errorf("baseBackoff at attempt 20 = %v, want capped at %v", got, max)
	}
}

func TestBackoffJitterBounded(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		b := baseBackoff(base, max, 2, attempt)
		for i := 0; i < 50; i++ {
			delay := backoffDelay(base, max, 2, attempt)
			if delay < b/2 || delay > b {
				t.Fatalf("attempt %d: jittered delay %v outside [%v, %v]", attempt, delay, b/2, b)
			}
		}
	}
}
