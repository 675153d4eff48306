// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/models"
	ws "github.com/tomtom215/mediaforge/internal/websocket"
)

func startTestHub(t *testing.T) *ws.Hub {
	t.Helper()
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func dialAs(t *testing.T, srv *httptest.Server, creator, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	if header == nil {
		header = http.Header{}
	}
	header.Set(auth.CreatorHeader, creator)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func waitForHubClients(t *testing.T, hub *ws.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketDeliversOwnJobsOnly(t *testing.T) {
	t.Parallel()
	hub := startTestHub(t)
	env := newTestEnv(t, hub)
	srv := httptest.NewServer(env.server)
	t.Cleanup(srv.Close)

	alice, _, err := dialAs(t, srv, "alice", "", nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	bob, _, err := dialAs(t, srv, "bob", "", nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	waitForHubClients(t, hub, 2)

	hub.BroadcastJobStatus(events.JobStatus{JobID: "j1", SourceKey: "sources/alice/s1/a.mp4", Status: "running", Progress: 30})

	var frame struct {
		Type string           `json:"type"`
		Data events.JobStatus `json:"data"`
	}
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := alice.ReadJSON(&frame); err != nil {
		t.Fatalf("alice read: %v", err)
	}
	if frame.Data.JobID != "j1" || frame.Data.Progress != 30 {
		t.Errorf("alice got %+v", frame)
	}

	_ = bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if err := bob.ReadJSON(&frame); err == nil {
		t.Errorf("bob received alice's job %+v", frame)
	}
}

func TestWebSocketRejections(t *testing.T) {
	t.Parallel()

	t.Run("nil hub", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodGet, "/api/v1/ws", "alice", nil)
		expectError(t, rec, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", models.ActionRetryLater)
	})

	t.Run("invalid source", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, startTestHub(t))
		rec := env.do(t, http.MethodGet, "/api/v1/ws?source=%2Fabs", "alice", nil)
		expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", models.ActionFixRequest)
	})

	t.Run("foreign origin", func(t *testing.T) {
		t.Parallel()
		hub := startTestHub(t)
		env := newTestEnv(t, hub, func(cfg *config.Config) {
			cfg.Security.CORSOrigins = []string{"https://studio.example.com"}
		})
		srv := httptest.NewServer(env.server)
		t.Cleanup(srv.Close)

		_, resp, err := dialAs(t, srv, "alice", "", http.Header{"Origin": []string{"https://evil.example.com"}})
		if err == nil {
			t.Fatal("expected handshake to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("response = %v, want 403", resp)
		}

		if _, _, err := dialAs(t, srv, "alice", "", http.Header{"Origin": []string{"https://studio.example.com"}}); err != nil {
			t.Errorf("allowed origin rejected: %v", err)
		}
	})
}
