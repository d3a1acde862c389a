package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

func TestCloseWithErrorDeliversFrameBeforeClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverDone := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(serverDone)

		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		conn := NewConn("sess-reject", sock, "", 8, time.Second, logger.NewNop())
		go conn.WriteLoop(time.Minute)

		// Отказ: кадр должен дойти до клиента раньше закрытия сокета
		conn.CloseWithError("unauthorized")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("expected an error frame before close, got read error: %v", err)
	}

	frame, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if frame.Command != CommandError {
		t.Errorf("command = %s, want %s", frame.Command, CommandError)
	}
	if frame.Destination != DestErrors {
		t.Errorf("destination = %s, want %s", frame.Destination, DestErrors)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(frame.Body, &body); err != nil || body.Error != "unauthorized" {
		t.Errorf("body = %s, want error %q", frame.Body, "unauthorized")
	}

	// После кадра отказа — только закрытие
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("connection should be closed after the error frame")
	}

	<-serverDone
}
