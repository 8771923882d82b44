package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nebulaone/pkg/domain"
)

func startHub(t *testing.T, interval time.Duration) (*Hub, string) {
	t.Helper()
	hub := NewHub(Options{PingInterval: interval})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubGreetsNewClient(t *testing.T) {
	hub, url := startHub(t, time.Minute)
	conn := dial(t, url)

	ev := readEvent(t, conn)
	if ev["type"] != TypeConnected {
		t.Fatalf("first event type = %v", ev["type"])
	}
	if id, _ := ev["clientId"].(string); len(id) != 36 {
		t.Fatalf("client id should be a uuid, got %v", ev["clientId"])
	}
	if ev["clients"] != float64(1) || ev["timestamp"] == "" || ev["message"] == "" {
		t.Fatalf("unexpected greeting: %v", ev)
	}
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
}

func TestHubPingPongEcho(t *testing.T) {
	_, url := startHub(t, time.Minute)
	conn := dial(t, url)
	readEvent(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "ping", "data": map[string]any{"n": 7}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, conn)
	if ev["type"] != TypePong || ev["timestamp"] == nil {
		t.Fatalf("unexpected pong: %v", ev)
	}
	echo, _ := ev["echo"].(map[string]any)
	if echo["n"] != float64(7) {
		t.Fatalf("echo = %v", ev["echo"])
	}
}

func TestHubChatEchoAndUnknownType(t *testing.T) {
	_, url := startHub(t, time.Minute)
	conn := dial(t, url)
	readEvent(t, conn)

	_ = conn.WriteJSON(map[string]any{"type": "chat_message", "data": "hello"})
	ev := readEvent(t, conn)
	if ev["type"] != TypeChatMessage || ev["data"] != "hello" {
		t.Fatalf("unexpected chat echo: %v", ev)
	}

	_ = conn.WriteJSON(map[string]any{"type": "dance"})
	ev = readEvent(t, conn)
	if ev["type"] != TypeError || !strings.Contains(ev["message"].(string), "dance") {
		t.Fatalf("unexpected error event: %v", ev)
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	ev = readEvent(t, conn)
	if ev["type"] != TypeError {
		t.Fatalf("invalid json should yield error event: %v", ev)
	}
}

func TestHubBroadcastsTimelineItems(t *testing.T) {
	hub, url := startHub(t, time.Minute)
	a := dial(t, url)
	b := dial(t, url)
	readEvent(t, a)
	readEvent(t, b)
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.PublishTimeline(domain.TimelineItem{
		ID:     "tl-1",
		Type:   domain.KindTask,
		ItemID: "task-1",
		Data:   domain.Task{ID: "task-1", Title: "Ship it"},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		raw, _ := json.Marshal(ev["item"])
		var item struct {
			ID   string         `json:"id"`
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		_ = json.Unmarshal(raw, &item)
		if ev["type"] != TypeTimeline || item.ID != "tl-1" || item.Type != "task" || item.Data["title"] != "Ship it" {
			t.Fatalf("unexpected broadcast: %v", ev)
		}
	}
}

func TestHubTerminatesUnresponsiveClient(t *testing.T) {
	hub, url := startHub(t, 40*time.Millisecond)
	conn := dial(t, url)
	readEvent(t, conn)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	// Not reading means control frames are never processed, so no pong is sent.
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestHubKeepsResponsiveClient(t *testing.T) {
	hub, url := startHub(t, 40*time.Millisecond)
	conn := dial(t, url)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	time.Sleep(300 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Fatalf("responsive client was terminated")
	}
}

func TestOriginAllowed(t *testing.T) {
	r := httptest.NewRequest("GET", "http://api.nebula.dev/ws", nil)
	if !originAllowed(r, nil) {
		t.Fatalf("requests without Origin should pass")
	}
	r.Header.Set("Origin", "http://api.nebula.dev")
	if !originAllowed(r, nil) {
		t.Fatalf("same host origin should pass")
	}
	r.Header.Set("Origin", "https://evil.example")
	if originAllowed(r, nil) {
		t.Fatalf("foreign origin should be rejected")
	}
	if !originAllowed(r, []string{"https://evil.example"}) {
		t.Fatalf("listed origin should pass")
	}
}
