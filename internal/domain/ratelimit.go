package domain

import (
	"fmt"
	"time"
)

// OperationType — фиксированный набор типов операций для rate limiting.
type OperationType string

const (
	OpAuth         OperationType = "AUTH"
	OpPostCreation OperationType = "POST_CREATION"
	OpLike         OperationType = "LIKE"
	OpMessage      OperationType = "MESSAGE"
	OpAPIGeneral   OperationType = "API_GENERAL"
	OpWebSocket    OperationType = "WEBSOCKET"
)

// RateLimitPolicy — ёмкость корзины и период полного пополнения.
// Пополнение скачком до capacity раз в период, не непрерывное.
type RateLimitPolicy struct {
	Capacity     int
	RefillPeriod time.Duration
}

// RateLimitPolicies — захардкоженная таблица политик по типу операции.
var RateLimitPolicies = map[OperationType]RateLimitPolicy{
	OpAuth:         {Capacity: 5, RefillPeriod: time.Minute},
	OpPostCreation: {Capacity: 10, RefillPeriod: time.Minute},
	OpLike:         {Capacity: 30, RefillPeriod: time.Minute},
	OpMessage:      {Capacity: 20, RefillPeriod: time.Minute},
	OpAPIGeneral:   {Capacity: 100, RefillPeriod: time.Minute},
	OpWebSocket:    {Capacity: 50, RefillPeriod: time.Minute},
}

func PolicyFor(op OperationType) (RateLimitPolicy, bool) {
	p, ok := RateLimitPolicies[op]
	return p, ok
}

func ParseOperationType(s string) (OperationType, error) {
	op := OperationType(s)
	if _, ok := RateLimitPolicies[op]; !ok {
		return "", fmt.Errorf("unknown operation type: %q", s)
	}
	return op, nil
}

// Конструкторы ключей. Формат фиксированный, на него завязаны admin-ручки.
func UserRateKey(username string) string {
	return "user:" + username
}

func AnonymousRateKey(ip, sessionID string) string {
	return "ip:" + ip + ":session:" + sessionID
}

func WebSocketRateKey(username string) string {
	return "ws-user:" + username
}
