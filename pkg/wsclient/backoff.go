package wsclient

import (
	"math"
	"math/rand"
	"time"
)

// baseBackoff — детерминированная часть задержки: base * multiplier^attempt,
// ограниченная max.
func baseBackoff(base, max time.Duration, multiplier float64, attempt int) time.Duration {
	b := float64(base) * math.Pow(multiplier, float64(attempt))
	if b > float64(max) {
		b = float64(max)
	}
	return time.Duration(b)
}

// backoffDelay добавляет к базовой задержке ограниченный случайный джиттер,
// чтобы клиенты не переподключались синхронно после общего сбоя.
// Итоговая задержка лежит в [b/2, b].
func backoffDelay(base, max time.Duration, multiplier float64, attempt int) time.Duration {
	b := float64(baseBackoff(base, max, multiplier, attempt))
	j := b / 2
	return time.Duration(j + rand.Float64()*j)
}
