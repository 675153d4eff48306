// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediaforge/internal/models"
)

func echoCreator() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := CreatorFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func TestAuthenticateJWT(t *testing.T) {
	t.Parallel()

	m := testManager(t, "")
	token, err := m.GenerateToken("creator-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	handler := NewMiddleware(m, AuthModeJWT).Authenticate(echoCreator())

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "creator-1"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, http.StatusOK, "creator-1"},
		{"query token", func(r *http.Request) { r.URL.RawQuery = "access_token=" + token }, http.StatusOK, "creator-1"},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized, ""},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
		{"header ignored", func(r *http.Request) { r.Header.Set(CreatorHeader, "spoofed") }, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != tt.wantBody {
				t.Errorf("creator = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthenticateHeaderMode(t *testing.T) {
	t.Parallel()

	handler := NewMiddleware(nil, AuthModeHeader).Authenticate(echoCreator())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CreatorHeader, " creator-7 ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "creator-7" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without header = %d", rec.Code)
	}
}

func TestUnauthorizedEnvelope(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewMiddleware(nil, AuthModeJWT).Authenticate(echoCreator()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" || resp.Error == nil || resp.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.Contains(resp.Error.Message, "missing token") {
		t.Errorf("message = %q", resp.Error.Message)
	}
	if resp.Error.Details["action"] != models.ActionFixRequest {
		t.Errorf("action = %v", resp.Error.Details["action"])
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}
