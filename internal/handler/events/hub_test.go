package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-notes/internal/model/project"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	hub.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", want, hub.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsChanges(t *testing.T) {
	hub := NewHub(nil)
	first := dial(t, hub)
	second := dial(t, hub)
	waitSubscribers(t, hub, 2)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(project.Change{Type: project.FileSaved, ProjectID: "Bio", FileID: "cells", Timestamp: ts})

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got project.Change
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("ReadJSON err: %v", err)
		}
		if got.Type != project.FileSaved || got.ProjectID != "Bio" || got.FileID != "cells" || !got.Timestamp.Equal(ts) {
			t.Fatalf("unexpected change %#v", got)
		}
	}
}

func TestHubForgetsClosedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	conn := dial(t, hub)
	waitSubscribers(t, hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitSubscribers(t, hub, 0)

	hub.Publish(project.Change{Type: project.ProjectCreated, ProjectID: "Art"})
}

func TestHubCloseDisconnects(t *testing.T) {
	hub := NewHub(nil)
	conn := dial(t, hub)
	waitSubscribers(t, hub, 1)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after Close")
	}
}
