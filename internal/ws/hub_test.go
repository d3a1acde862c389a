package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

func newHubConn(sessionID, username string) *Conn {
	conn := NewConn(sessionID, nil, "", 16, time.Second, logger.NewNop())
	conn.SetIdentity(username, domain.GlobalRoleUser, nil)
	return conn
}

// drainFrames забирает всё из очереди отправки без блокировки.
func drainFrames(conn *Conn) []*Frame {
	var frames []*Frame
	for {
		select {
		case f := <-conn.send:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestHubSendToUserReachesAllUserSessions(t *testing.T) {
	hub := NewHub(logger.NewNop())

	a1 := newHubConn("s1", "alice")
	a2 := newHubConn("s2", "alice")
	b := newHubConn("s3", "bob")
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)

	hub.SendToUser("alice", DestNotifications, map[string]string{"text": "hi"})

	if got := len(drainFrames(a1)); got != 1 {
		t.Errorf("alice session 1 frames = %d, want 1", got)
	}
	if got := len(drainFrames(a2)); got != 1 {
		t.Errorf("alice session 2 frames = %d, want 1", got)
	}
	if got := len(drainFrames(b)); got != 0 {
		t.Errorf("bob frames = %d, want 0", got)
	}
}

func TestHubBroadcastReachesEveryone(t *testing.T) {
	hub := NewHub(logger.NewNop())
	conns := []*Conn{
		newHubConn("s1", "alice"),
		newHubConn("s2", "bob"),
		newHubConn("s3", "carol"),
	}
	for _, c := range conns {
		hub.Register(c)
	}

	hub.Broadcast(DestAnnouncements, domain.Announcement{Title: "exam", Text: "friday"})

	for _, c := range conns {
		frames := drainFrames(c)
		if len(frames) != 1 {
			t.Fatalf("%s frames = %d, want 1", c.SessionID(), len(frames))
		}
		if frames[0].Destination != DestAnnouncements {
			t.Fatalf("destination = %q", frames[0].Destination)
		}
	}
}

// Порядок кадров в пределах одного destination сохраняется:
// очередь одна на подключение.
func TestHubPerDestinationOrderPreserved(t *testing.T) {
	hub := NewHub(logger.NewNop())
	conn := newHubConn("s1", "alice")
	hub.Register(conn)

	for i := 0; i < 5; i++ {
		hub.SendToUser("alice", DestMessages, map[string]int{"seq": i})
	}

	frames := drainFrames(conn)
	if len(frames) != 5 {
		t.Fatalf("frames = %d, want 5", len(frames))
	}
	for i, f := range frames {
		var body map[string]int
		if err := json.Unmarshal(f.Body, &body); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if body["seq"] != i {
			t.Fatalf("frame %d has seq %d, order not preserved", i, body["seq"])
		}
	}
}

func TestHubUnregisterIsIdempotentAndInstanceScoped(t *testing.T) {
	hub := NewHub(logger.NewNop())

	old := newHubConn("s1", "alice")
	hub.Register(old)

	// Переподключение с тем же session id регистрирует новый экземпляр
	fresh := newHubConn("s1", "alice")
	hub.Register(fresh)

	// Отложенная отписка старого экземпляра не должна снять новый
	hub.Unregister(old)
	if !hub.IsUserConnected("alice") {
		t.Fatal("stale unregister must not remove the fresh connection")
	}

	hub.Unregister(fresh)
	hub.Unregister(fresh) // повторно — no-op
	if hub.IsUserConnected("alice") {
		t.Fatal("alice should be disconnected")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("connection count = %d, want 0", hub.ConnectionCount())
	}
}

func TestHubIsUserConnected(t *testing.T) {
	hub := NewHub(logger.NewNop())
	if hub.IsUserConnected("alice") {
		t.Fatal("no connections yet")
	}

	conn := newHubConn("s1", "alice")
	hub.Register(conn)
	if !hub.IsUserConnected("alice") {
		t.Fatal("alice just connected")
	}

	hub.Unregister(conn)
	if hub.IsUserConnected("alice") {
		t.Fatal("alice disconnected, no other sessions")
	}
}

func TestFrameParseErrors(t *testing.T) {
	if _, err := ParseFrame([]byte("{not json")); err == nil {
		t.Fatal("malformed JSON must fail")
	}
	if _, err := ParseFrame([]byte(`{"destination":"/app/echo"}`)); err == nil {
		t.Fatal("frame without command must fail")
	}
	f, err := ParseFrame([]byte(`{"command":"SEND","destination":"/app/echo","body":{"x":1}}`))
	if err != nil {
		t.Fatalf("valid frame: %v", err)
	}
	if f.Command != CommandSend || f.Destination != DestAppEcho {
		t.Fatalf("parsed frame = %+v", f)
	}
}
