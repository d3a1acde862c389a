package ws

import (
	"encoding/json"
	"fmt"
)

// Command — команда кадра realtime-протокола поверх WebSocket.
// Протокол STOMP-подобный: JSON-кадры с командой, заголовками и телом.
type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandConnected   Command = "CONNECTED"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandMessage     Command = "MESSAGE"
	CommandError       Command = "ERROR"
	CommandPing        Command = "PING"
	CommandPong        Command = "PONG"
)

// Именованные destination. Персональные очереди сервер адресует
// конкретному пользователю, топики — широковещательные.
const (
	DestNotifications = "/user/queue/notifications"
	DestMessages      = "/user/queue/messages"
	DestTyping        = "/user/queue/typing"
	DestErrors        = "/user/queue/errors"

	DestAnnouncements = "/topic/announcements"
	DestPosts         = "/topic/posts"
	DestPresence      = "/topic/presence"

	// Префикс когортных presence-топиков: /topic/presence/<cohort>
	DestPresenceCohortPrefix = "/topic/presence/"

	// Клиентские app-destination
	DestAppTyping = "/app/typing"
	DestAppEcho   = "/app/echo"
)

func CohortPresenceDest(cohortID string) string {
	return DestPresenceCohortPrefix + cohortID
}

type Frame struct {
	Command     Command           `json:"command"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// NewMessageFrame упаковывает произвольное тело в MESSAGE-кадр.
func NewMessageFrame(destination string, body interface{}) (*Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame body: %w", err)
	}
	return &Frame{
		Command:     CommandMessage,
		Destination: destination,
		Body:        raw,
	}, nil
}

func NewErrorFrame(message string) *Frame {
	raw, _ := json.Marshal(map[string]string{"error": message})
	return &Frame{
		Command:     CommandError,
		Destination: DestErrors,
		Body:        raw,
	}
}

func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if f.Command == "" {
		return nil, fmt.Errorf("malformed frame: missing command")
	}
	return &f, nil
}
