// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/quality"
	"github.com/tomtom215/mediaforge/internal/transcode"
	"github.com/tomtom215/mediaforge/internal/upload"
	ws "github.com/tomtom215/mediaforge/internal/websocket"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeUploads is an in-memory UploadService. Errors set in errs are
// returned by the named method.
type fakeUploads struct {
	mu       sync.Mutex
	sessions map[string]*upload.Session
	chunks   map[string][]byte
	errs     map[string]error
	created  []upload.CreateRequest
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{
		sessions: make(map[string]*upload.Session),
		chunks:   make(map[string][]byte),
		errs:     make(map[string]error),
	}
}

func (f *fakeUploads) add(s *upload.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

func (f *fakeUploads) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeUploads) owned(creatorID, sessionID string) (*upload.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.CreatorID != creatorID {
		return nil, fmt.Errorf("%w: %s", upload.ErrSessionNotFound, sessionID)
	}
	return s, nil
}

func (f *fakeUploads) Create(_ context.Context, req upload.CreateRequest) (*upload.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["Create"]; err != nil {
		return nil, err
	}
	f.created = append(f.created, req)
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = req.TotalSize
	}
	s := &upload.Session{
		ID:          fmt.Sprintf("sess-%d", len(f.created)),
		CreatorID:   req.CreatorID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		TotalSize:   req.TotalSize,
		ChunkSize:   chunkSize,
		TotalChunks: int((req.TotalSize + chunkSize - 1) / chunkSize),
		Status:      upload.StatusPending,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
		ExpiresAt:   testTime.Add(time.Hour),
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeUploads) Get(_ context.Context, creatorID, sessionID string) (*upload.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owned(creatorID, sessionID)
}

func (f *fakeUploads) List(_ context.Context, creatorID string) ([]*upload.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["List"]; err != nil {
		return nil, err
	}
	var out []*upload.Session
	for _, s := range f.sessions {
		if s.CreatorID == creatorID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeUploads) AcceptChunk(_ context.Context, creatorID, sessionID string, index int, data []byte) (*upload.ChunkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["AcceptChunk"]; err != nil {
		return nil, err
	}
	s, err := f.owned(creatorID, sessionID)
	if err != nil {
		return nil, err
	}
	f.chunks[fmt.Sprintf("%s/%d", sessionID, index)] = data
	return &upload.ChunkResult{
		SessionID:      sessionID,
		Index:          index,
		Outcome:        upload.ChunkAccepted,
		ReceivedChunks: 1,
		TotalChunks:    s.TotalChunks,
	}, nil
}

func (f *fakeUploads) Finalize(_ context.Context, creatorID, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["Finalize"]; err != nil {
		return "", err
	}
	s, err := f.owned(creatorID, sessionID)
	if err != nil {
		return "", err
	}
	s.Status = upload.StatusCompleted
	s.StorageKey = upload.SourceKey(s.CreatorID, s.ID, s.Filename)
	return s.StorageKey, nil
}

func (f *fakeUploads) Abort(_ context.Context, creatorID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.owned(creatorID, sessionID)
	if err != nil {
		return err
	}
	s.Status = upload.StatusExpired
	return nil
}

// fakeJobs is an in-memory JobService.
type fakeJobs struct {
	mu         sync.Mutex
	jobs       map[string]*transcode.Job
	logs       map[string][]transcode.LogLine
	renditions map[string][]*transcode.Rendition
	cancelErr  error
	retried    []string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		jobs:       make(map[string]*transcode.Job),
		logs:       make(map[string][]transcode.LogLine),
		renditions: make(map[string][]*transcode.Rendition),
	}
}

func (f *fakeJobs) add(j *transcode.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakeJobs) Get(_ context.Context, jobID string) (*transcode.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transcode.ErrJobNotFound, jobID)
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) ListBySource(_ context.Context, sourceKey string) ([]*transcode.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*transcode.Job
	for _, j := range f.jobs {
		if j.SourceKey == sourceKey {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) Logs(_ context.Context, jobID string) ([]transcode.LogLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[jobID], nil
}

func (f *fakeJobs) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	j := f.jobs[jobID]
	j.Status = transcode.StatusFailed
	j.FailureReason = transcode.ReasonCancelled
	return nil
}

func (f *fakeJobs) Retry(_ context.Context, jobID string) (*transcode.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	if j.Status != transcode.StatusFailed {
		return nil, fmt.Errorf("%w: job %s is %s", transcode.ErrInvalidJobState, jobID, j.Status)
	}
	f.retried = append(f.retried, jobID)
	next := &transcode.Job{
		ID:        jobID + "-retry",
		SourceKey: j.SourceKey,
		Profile:   j.Profile,
		Status:    transcode.StatusQueued,
		Attempt:   j.Attempt + 1,
		RetryOf:   jobID,
		QueuedAt:  testTime,
	}
	f.jobs[next.ID] = next
	return next, nil
}

func (f *fakeJobs) Renditions(_ context.Context, sourceKey string) ([]*transcode.Rendition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renditions[sourceKey], nil
}

type testEnv struct {
	uploads *fakeUploads
	jobs    *fakeJobs
	handler *Handler
	server  http.Handler
}

// newTestEnv builds the full router in header auth mode with rate
// limiting disabled.
func newTestEnv(t *testing.T, hub *ws.Hub, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Security.AuthMode = auth.AuthModeHeader
	cfg.Security.RateLimitDisabled = true
	cfg.Upload.MaxChunkSize = 1024
	for _, fn := range mutate {
		fn(cfg)
	}

	registry, err := quality.NewRegistry(nil, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	env := &testEnv{uploads: newFakeUploads(), jobs: newFakeJobs()}
	env.handler = NewHandler(cfg, env.uploads, env.jobs, registry, hub)
	router := NewRouter(env.handler,
		auth.NewMiddleware(nil, cfg.Security.AuthMode),
		NewChiMiddleware(ChiMiddlewareConfigFrom(cfg.Security)))
	env.server = router.Setup()
	return env
}

// do performs a request as creator; an empty creator sends no identity.
func (e *testEnv) do(t *testing.T, method, target, creator string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if creator != "" {
		req.Header.Set(auth.CreatorHeader, creator)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if env.Status != "success" {
		t.Fatalf("status = %q, error = %+v", env.Status, env.Error)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

// expectError asserts the status, code and client action of an error
// response and returns its details.
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code, action string) map[string]interface{} {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("HTTP status = %d, want %d; body %s", rec.Code, status, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "error" || env.Error == nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	if env.Error.Code != code {
		t.Errorf("code = %q, want %q", env.Error.Code, code)
	}
	if got := env.Error.Details["action"]; got != action {
		t.Errorf("action = %v, want %q", got, action)
	}
	return env.Error.Details
}
