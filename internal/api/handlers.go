// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"context"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/quality"
	"github.com/tomtom215/mediaforge/internal/transcode"
	"github.com/tomtom215/mediaforge/internal/upload"
	ws "github.com/tomtom215/mediaforge/internal/websocket"
)

// UploadService is the upload session manager as seen by the API.
type UploadService interface {
	Create(ctx context.Context, req upload.CreateRequest) (*upload.Session, error)
	Get(ctx context.Context, creatorID, sessionID string) (*upload.Session, error)
	List(ctx context.Context, creatorID string) ([]*upload.Session, error)
	AcceptChunk(ctx context.Context, creatorID, sessionID string, index int, data []byte) (*upload.ChunkResult, error)
	Finalize(ctx context.Context, creatorID, sessionID string) (string, error)
	Abort(ctx context.Context, creatorID, sessionID string) error
}

// JobService is the transcoding job tracker as seen by the API.
type JobService interface {
	Get(ctx context.Context, jobID string) (*transcode.Job, error)
	ListBySource(ctx context.Context, sourceKey string) ([]*transcode.Job, error)
	Logs(ctx context.Context, jobID string) ([]transcode.LogLine, error)
	Cancel(ctx context.Context, jobID string) error
	Retry(ctx context.Context, jobID string) (*transcode.Job, error)
	Renditions(ctx context.Context, sourceKey string) ([]*transcode.Rendition, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler contains the dependencies of the API handlers.
type Handler struct {
	uploads      UploadService
	jobs         JobService
	registry     *quality.Registry
	wsHub        *ws.Hub
	config       *config.Config
	healthChecks map[string]HealthCheck
	startTime    time.Time
}

// NewHandler wires the handlers. wsHub may be nil, which disables the
// websocket endpoint.
func NewHandler(cfg *config.Config, uploads UploadService, jobs JobService, registry *quality.Registry, wsHub *ws.Hub) *Handler {
	return &Handler{
		uploads:      uploads,
		jobs:         jobs,
		registry:     registry,
		wsHub:        wsHub,
		config:       cfg,
		healthChecks: make(map[string]HealthCheck),
		startTime:    time.Now(),
	}
}

// AddHealthCheck registers a readiness dependency. Not safe to call once
// the server is serving.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.healthChecks[name] = check
}
