// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/quality"
	"github.com/tomtom215/mediaforge/internal/upload"
)

func TestAPIRequiresIdentity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	for _, path := range []string{
		"/api/v1/uploads",
		"/api/v1/quality/profiles",
		"/api/v1/transcoding/job/status",
		"/api/v1/ws",
	} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without identity = %d, want 401", path, rec.Code)
		}
	}
}

func TestRouterJWTMode(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Security.AuthMode = auth.AuthModeJWT
	cfg.Security.JWTSecret = strings.Repeat("s", 32)
	cfg.Security.RateLimitDisabled = true
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	registry, err := quality.NewRegistry(nil, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	uploads := newFakeUploads()
	uploads.add(&upload.Session{ID: "s1", CreatorID: "alice", TotalChunks: 1, Status: upload.StatusPending})
	handler := NewHandler(cfg, uploads, newFakeJobs(), registry, nil)
	server := NewRouter(handler, auth.NewMiddleware(jwtManager, cfg.Security.AuthMode),
		NewChiMiddleware(ChiMiddlewareConfigFrom(cfg.Security))).Setup()

	token, err := jwtManager.GenerateToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/s1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The header shortcut is ignored in JWT mode.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/uploads/s1", nil)
	req.Header.Set(auth.CreatorHeader, "alice")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("header identity in JWT mode = %d, want 401", rec.Code)
	}
}

func TestRouterNotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/nope", "", nil)
	expectError(t, rec, http.StatusNotFound, "NOT_FOUND", models.ActionFixRequest)

	rec = env.do(t, http.MethodPatch, "/api/v1/health/live", "", nil)
	expectError(t, rec, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", models.ActionFixRequest)
}

func TestRouterSetsRequestIDAndSecurityHeaders(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/quality/profiles", "alice", nil)
	id := rec.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("missing X-Request-ID")
	}
	if got := decodeEnvelope(t, rec).Metadata.RequestID; got != id {
		t.Errorf("metadata.request_id = %q, header = %q", got, id)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("API responses must not be cached")
	}
}

func TestRateLimitIsPerCreator(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, func(cfg *config.Config) {
		cfg.Security.RateLimitDisabled = false
		cfg.Security.RateLimitReqs = 2
		cfg.Security.RateLimitWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodGet, "/api/v1/quality/profiles", "alice", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/api/v1/quality/profiles", "alice", nil)
	expectError(t, rec, http.StatusTooManyRequests, "RATE_LIMITED", models.ActionRetryLater)

	if rec := env.do(t, http.MethodGet, "/api/v1/quality/profiles", "bob", nil); rec.Code != http.StatusOK {
		t.Errorf("bob limited by alice's budget: %d", rec.Code)
	}
}

func TestChunkUploadsHaveSeparateBudget(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, func(cfg *config.Config) {
		cfg.Security.RateLimitDisabled = false
		cfg.Security.RateLimitReqs = 1
		cfg.Security.ChunkRateLimitReqs = 5
		cfg.Security.RateLimitWindow = time.Minute
	})
	env.uploads.add(&upload.Session{ID: "s1", CreatorID: "alice", TotalChunks: 5, Status: upload.StatusPending})

	if rec := env.do(t, http.MethodGet, "/api/v1/uploads/s1", "alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("GET = %d", rec.Code)
	}
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPut, "/api/v1/uploads/s1/chunks/0", "alice", bytes.NewReader([]byte("x")))
		if rec.Code != http.StatusOK {
			t.Fatalf("chunk PUT %d = %d; body %s", i, rec.Code, rec.Body.String())
		}
	}
}
