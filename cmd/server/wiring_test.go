// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/mediaforge/internal/api"
	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/cdn"
	"github.com/tomtom215/mediaforge/internal/chunkstore"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/database"
	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/objectstore"
	"github.com/tomtom215/mediaforge/internal/quality"
	"github.com/tomtom215/mediaforge/internal/transcode"
	"github.com/tomtom215/mediaforge/internal/upload"
	ws "github.com/tomtom215/mediaforge/internal/websocket"
)

func TestNewCacheAPI(t *testing.T) {
	t.Parallel()

	if _, ok := newCacheAPI(config.CDNConfig{Domain: "cdn.example.com"}).(cdn.NoopCacheAPI); !ok {
		t.Error("missing credentials should select the no-op client")
	}
	got := newCacheAPI(config.CDNConfig{
		Domain:         "cdn.example.com",
		ZoneID:         "zone",
		APIToken:       "token",
		RequestTimeout: time.Second,
	})
	if _, ok := got.(*cdn.CloudflareAPI); !ok {
		t.Errorf("newCacheAPI = %T, want *cdn.CloudflareAPI", got)
	}
}

// stack is the server wiring on in-memory backends.
type stack struct {
	cfg     *config.Config
	kv      *badger.DB
	objects *objectstore.LocalStore
	db      *database.DB
	bus     *events.Bus
	tracker *transcode.Tracker
	router  *events.Router
	uploads *upload.Manager
	server  http.Handler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	cfg := config.Default()
	cfg.Security.AuthMode = auth.AuthModeHeader
	cfg.ChunkStore.InMemory = true
	cfg.Upload.MaxChunkSize = config.InMemoryMaxValueSize
	cfg.Database.Path = ":memory:"
	cfg.Events.Transport = "memory"

	kv, err := chunkstore.OpenDB(cfg.ChunkStore)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	objects, err := objectstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry, err := quality.FromConfig(cfg.Quality)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	wmLogger := logging.NewWatermillAdapter()
	bus, err := events.Open(cfg.Events, wmLogger)
	if err != nil {
		t.Fatalf("events.Open: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	tracker := transcode.NewTracker(transcode.NewDuckDBRepository(db), registry, bus)
	uploads := upload.NewManager(cfg.Upload,
		upload.NewBadgerRepository(kv, cfg.Upload.SessionTTL),
		chunkstore.NewBadgerStore(kv, cfg.ChunkStore.EntryTTL),
		objects, bus,
		upload.WithJobIndex(tracker),
		upload.WithTempDir(t.TempDir()))
	router, err := events.NewRouter(events.RouterConfigFrom(cfg.Events), bus, wmLogger)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(func() { _ = router.Close() })
	if err := registerConsumers(router, tracker, cdn.NewPublisher(cfg.CDN, cdn.NoopCacheAPI{}), ws.NewHub()); err != nil {
		t.Fatalf("registerConsumers: %v", err)
	}

	handler := api.NewHandler(cfg, uploads, tracker, registry, nil)
	addHealthChecks(handler, db, kv, objects, bus, router)
	server := api.NewRouter(handler, auth.NewMiddleware(nil, cfg.Security.AuthMode),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Security))).Setup()

	return &stack{
		cfg:     cfg,
		kv:      kv,
		objects: objects,
		db:      db,
		bus:     bus,
		tracker: tracker,
		router:  router,
		uploads: uploads,
		server:  server,
	}
}

// serveRouter runs the event router until the test ends.
func (s *stack) serveRouter(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.router.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-s.router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("event router did not start")
	}
}

func (s *stack) ready() int {
	rec := httptest.NewRecorder()
	s.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	return rec.Code
}

func TestWiringWithInMemoryBackends(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	if got := s.ready(); got != http.StatusServiceUnavailable {
		t.Errorf("ready before Connect = %d, want 503", got)
	}
	if err := s.bus.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := s.ready(); got != http.StatusServiceUnavailable {
		t.Errorf("ready before the event router runs = %d, want 503", got)
	}
	s.serveRouter(t)
	if got := s.ready(); got != http.StatusOK {
		t.Errorf("ready with the event router running = %d, want 200", got)
	}
}

func TestUploadToQueuedTranscodes(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	ctx := context.Background()
	if err := s.bus.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sess, err := s.uploads.Create(ctx, upload.CreateRequest{
		CreatorID:   "creator-1",
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		TotalSize:   1_000_000,
		ChunkSize:   400_000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.TotalChunks != 3 {
		t.Fatalf("TotalChunks = %d, want 3", sess.TotalChunks)
	}
	if got := sess.ExpectedChunkSize(2); got != 200_000 {
		t.Fatalf("ExpectedChunkSize(2) = %d, want 200000", got)
	}

	payload := make([]byte, 1_000_000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	chunk := func(i int) []byte {
		end := (i + 1) * 400_000
		if end > len(payload) {
			end = len(payload)
		}
		return payload[i*400_000 : end]
	}

	for i := 0; i < 2; i++ {
		res, err := s.uploads.AcceptChunk(ctx, "creator-1", sess.ID, i, chunk(i))
		if err != nil {
			t.Fatalf("AcceptChunk(%d): %v", i, err)
		}
		if res.Completed {
			t.Fatalf("session completed after chunk %d", i)
		}
	}

	if _, err := s.uploads.AcceptChunk(ctx, "creator-1", sess.ID, 2, chunk(2)[:199_999]); !errors.Is(err, upload.ErrChunkSizeMismatch) {
		t.Fatalf("short last chunk: err = %v, want ErrChunkSizeMismatch", err)
	}
	cur, err := s.uploads.Get(ctx, "creator-1", sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cur.Status != upload.StatusPending {
		t.Fatalf("status after short chunk = %q, want pending", cur.Status)
	}

	// The router is not running yet: source_ready must still reach it.
	res, err := s.uploads.AcceptChunk(ctx, "creator-1", sess.ID, 2, chunk(2))
	if err != nil {
		t.Fatalf("AcceptChunk(2): %v", err)
	}
	if !res.Completed || res.StorageKey == "" {
		t.Fatalf("last chunk result = %+v, want completed with a storage key", res)
	}
	s.serveRouter(t)

	deadline := time.Now().Add(10 * time.Second)
	var jobs []*transcode.Job
	for {
		jobs, err = s.tracker.ListBySource(ctx, res.StorageKey)
		if err != nil {
			t.Fatalf("ListBySource: %v", err)
		}
		if len(jobs) >= 4 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(jobs) != 4 {
		t.Fatalf("jobs = %d, want 4", len(jobs))
	}
	profiles := map[string]bool{}
	for _, j := range jobs {
		if j.Status != transcode.StatusQueued {
			t.Errorf("job %s status = %q, want queued", j.ID, j.Status)
		}
		if j.ContentType != "video/mp4" {
			t.Errorf("job %s content type = %q", j.ID, j.ContentType)
		}
		profiles[j.Profile] = true
	}
	for _, p := range []string{"720p", "480p", "360p", "240p"} {
		if !profiles[p] {
			t.Errorf("no job for profile %s", p)
		}
	}

	// A repeated announcement must not queue a second set.
	if err := s.uploads.AnnouncePending(ctx); err != nil {
		t.Fatalf("AnnouncePending: %v", err)
	}
	if jobs, _ = s.tracker.ListBySource(ctx, res.StorageKey); len(jobs) != 4 {
		t.Errorf("jobs after AnnouncePending = %d, want 4", len(jobs))
	}
}

func TestNewHTTPServer(t *testing.T) {
	t.Parallel()

	srv := newHTTPServer(config.ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeout: 30 * time.Second}, http.NotFoundHandler())
	if srv.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 30*time.Second {
		t.Errorf("ReadHeaderTimeout = %v", srv.ReadHeaderTimeout)
	}
}
