// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package cdn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mediaforge/internal/config"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *CloudflareAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCloudflareAPI(config.CDNConfig{
		ZoneID:            "zone1",
		APIToken:          "secret",
		APIBaseURL:        srv.URL,
		RequestTimeout:    2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
	})
}

func TestCloudflarePurgeBatches(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		batches [][]string
	)
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/zones/zone1/purge_cache" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body purgeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		batches = append(batches, body.Files)
		mu.Unlock()
		fmt.Fprint(w, `{"success":true,"errors":[]}`)
	})

	urls := make([]string, 65)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.example.com/%d.mp4", i)
	}
	if err := api.Purge(context.Background(), urls); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(batches) != 3 || len(batches[0]) != 30 || len(batches[2]) != 5 {
		t.Errorf("batch sizes = %d batches", len(batches))
	}
}

func TestCloudflareSetCacheTTL(t *testing.T) {
	t.Parallel()

	var got pageRuleRequest
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/zones/zone1/pagerules" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"success":true}`)
	})

	if err := api.SetCacheTTL(context.Background(), "https://cdn.example.com/a.mp4*", 600); err != nil {
		t.Fatalf("SetCacheTTL: %v", err)
	}
	if got.Targets[0].Constraint.Value != "https://cdn.example.com/a.mp4*" {
		t.Errorf("target = %+v", got.Targets)
	}
	if len(got.Actions) != 2 || got.Actions[1].ID != "edge_cache_ttl" || got.Actions[1].Value != float64(600) {
		t.Errorf("actions = %+v", got.Actions)
	}
}

func TestCloudflareErrors(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"success":false,"errors":[{"code":10000,"message":"Authentication error"}]}`)
	})

	err := api.Purge(context.Background(), []string{"https://cdn.example.com/a"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Retryable() {
		t.Errorf("apiErr = %+v", apiErr)
	}

	// Client errors do not open the breaker.
	for i := 0; i < 6; i++ {
		_ = api.Purge(context.Background(), []string{"https://cdn.example.com/a"})
	}
	if err := api.Purge(context.Background(), []string{"https://cdn.example.com/a"}); errors.Is(err, gobreaker.ErrOpenState) {
		t.Error("breaker opened on 4xx responses")
	}
}

func TestCloudflareBreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		if err := api.Purge(context.Background(), []string{"https://cdn.example.com/a"}); err == nil {
			t.Fatal("expected failure")
		}
	}
	err := api.Purge(context.Background(), []string{"https://cdn.example.com/a"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error after 5 failures = %v, want open breaker", err)
	}
	if calls.Load() != 5 {
		t.Errorf("server saw %d calls, want 5", calls.Load())
	}
}

func TestCloudflareRespectsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	api := NewCloudflareAPI(config.CDNConfig{ZoneID: "z", APIBaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond})
	start := time.Now()
	if err := api.Purge(context.Background(), []string{"u"}); err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("request was not bounded by the timeout")
	}
}
