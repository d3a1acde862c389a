package service

// EventPublisher — канал доставки push-событий. Реализуется ws.Hub.
// Доставка fire-and-forget: потеря события не ломает состояние,
// клиент сверяется через polling.
type EventPublisher interface {
	SendToUser(username, destination string, body interface{})
	Broadcast(destination string, body interface{})
}
