// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
)

func TestEmbeddedServerRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded nats-server")
	}

	cfg := config.Default().Events
	cfg.Transport = "nats"
	cfg.EmbeddedServer = true
	cfg.StoreDir = t.TempDir()
	cfg.CloseTimeout = time.Second

	bus, err := Open(cfg, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	if bus.embedded == nil || !strings.HasPrefix(bus.embedded.ClientURL(), "nats://127.0.0.1:") {
		t.Fatal("embedded server not started on loopback")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bus.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	got := make(chan JobStatus, 1)
	newRunningRouter(t, bus, "", func(r *Router) {
		err := r.AddConsumer("status", TopicJobStatus,
			Handle(TopicJobStatus, func(_ context.Context, ev JobStatus) error {
				got <- ev
				return nil
			}))
		if err != nil {
			t.Fatal(err)
		}
	})

	if err := bus.Publish(ctx, TopicJobStatus, JobStatus{JobID: "j1", Status: "running", Progress: 40}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-got:
		if ev.JobID != "j1" || ev.Progress != 40 {
			t.Errorf("unexpected payload %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("job_status not delivered through the embedded server")
	}
}
