// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/mediaforge/internal/events"
)

// startHub runs a hub for the duration of the test.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// serveClients upgrades every request and registers a client whose
// prefix is the "prefix" query parameter and whose source is "source".
func serveClients(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn, Filter{Prefix: r.URL.Query().Get("prefix"), Source: r.URL.Query().Get("source")})
		if err := hub.Join(r.Context(), client); err != nil {
			t.Errorf("join: %v", err)
			return
		}
		client.Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type jobFrame struct {
	Type string           `json:"type"`
	Data events.JobStatus `json:"data"`
}

func readJob(t *testing.T, conn *websocket.Conn) jobFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f jobFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestHubRoutesJobStatusByFilter(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	srv := serveClients(t, hub)

	alice := dial(t, srv, "prefix=sources/alice/")
	aliceOne := dial(t, srv, "prefix=sources/alice/&source=sources/alice/s1/a.mp4")
	bob := dial(t, srv, "prefix=sources/bob/")
	waitForClients(t, hub, 3)

	hub.BroadcastJobStatus(events.JobStatus{JobID: "j2", SourceKey: "sources/alice/s2/b.mp4", Status: "running", Progress: 10})
	hub.BroadcastJobStatus(events.JobStatus{JobID: "j1", SourceKey: "sources/alice/s1/a.mp4", Status: "running", Progress: 40})
	hub.BroadcastJobStatus(events.JobStatus{JobID: "j3", SourceKey: "sources/bob/s9/c.mp4", Status: "completed", Progress: 100})

	if f := readJob(t, alice); f.Type != MessageTypeJobStatus || f.Data.JobID != "j2" {
		t.Errorf("alice first frame = %+v", f)
	}
	if f := readJob(t, alice); f.Data.JobID != "j1" || f.Data.Progress != 40 {
		t.Errorf("alice second frame = %+v", f)
	}
	if f := readJob(t, aliceOne); f.Data.JobID != "j1" {
		t.Errorf("filtered client got %+v, want only j1", f)
	}
	if f := readJob(t, bob); f.Data.JobID != "j3" || f.Data.Status != "completed" {
		t.Errorf("bob frame = %+v", f)
	}
}

func TestClientPingPong(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, serveClients(t, hub), "prefix=sources/x/")
	waitForClients(t, hub, 1)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if f := readJob(t, conn); f.Type != MessageTypePong {
		t.Errorf("reply type = %q, want pong", f.Type)
	}
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, serveClients(t, hub), "prefix=sources/x/")
	waitForClients(t, hub, 1)

	_ = conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubShutdownClosesClients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	conn := dial(t, serveClients(t, hub), "prefix=sources/x/")
	waitForClients(t, hub, 1)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want going-away close", err)
	}
}

func TestJoinGivesUpWhenHubIsNotRunning(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := NewHub().Join(ctx, &Client{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Join = %v", err)
	}
}

func TestClientWants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filter Filter
		key    string
		want   bool
	}{
		{Filter{Prefix: "sources/a/"}, "sources/a/s/x.mp4", true},
		{Filter{Prefix: "sources/a/"}, "sources/ab/s/x.mp4", false},
		{Filter{Prefix: "sources/a/", Source: "sources/a/s/x.mp4"}, "sources/a/s/x.mp4", true},
		{Filter{Prefix: "sources/a/", Source: "sources/a/s/x.mp4"}, "sources/a/s/y.mp4", false},
		{Filter{Prefix: "sources/a/"}, "", false},
	}
	for _, tt := range tests {
		c := &Client{filter: tt.filter}
		if got := c.wants(tt.key); got != tt.want {
			t.Errorf("%+v wants(%q) = %v, want %v", tt.filter, tt.key, got, tt.want)
		}
	}
}

func TestJobStatusHandlerForwards(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	msg, err := events.NewMessage(context.Background(), events.TopicJobStatus, events.JobStatus{JobID: "j1", SourceKey: "sources/a/s/x.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if err := JobStatusHandler(hub)(msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	select {
	case m := <-hub.broadcast:
		if m.sourceKey != "sources/a/s/x.mp4" || m.Type != MessageTypeJobStatus {
			t.Errorf("queued %+v", m)
		}
	default:
		t.Error("nothing queued")
	}
}
