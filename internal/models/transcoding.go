// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package models

import "time"

// JobStatusResponse answers GET /api/v1/transcoding/{jobID}/status.
type JobStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// JobResponse is the full view of one transcoding job.
type JobResponse struct {
	JobID         string     `json:"job_id"`
	SourceKey     string     `json:"source_key"`
	Profile       string     `json:"profile"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	OutputKey     string     `json:"output_key,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Attempt       int        `json:"attempt"`
	RetryOf       string     `json:"retry_of,omitempty"`
	QueuedAt      time.Time  `json:"queued_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// JobLogLine is one entry of a job's processing log.
type JobLogLine struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// JobLogsResponse answers GET /api/v1/transcoding/{jobID}/logs.
type JobLogsResponse struct {
	JobID string       `json:"job_id"`
	Lines []JobLogLine `json:"lines"`
}

// RenditionResponse describes one encoded output.
type RenditionResponse struct {
	JobID       string     `json:"job_id"`
	SourceKey   string     `json:"source_key"`
	Profile     string     `json:"profile"`
	OutputKey   string     `json:"output_key"`
	CDNURL      string     `json:"cdn_url,omitempty"`
	Ready       bool       `json:"ready"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// QualityProfileResponse describes one entry of the profile catalog.
type QualityProfileResponse struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	BitrateKbps int    `json:"bitrate_kbps"`
	FrameRate   int    `json:"frame_rate"`
	Codec       string `json:"codec"`
}

// RecommendationResponse answers a single tier lookup.
type RecommendationResponse struct {
	Tier     string                 `json:"tier"`
	Profile  QualityProfileResponse `json:"profile"`
	Fallback bool                   `json:"fallback"`
}

// RetryResponse is returned when a failed job is retried.
type RetryResponse struct {
	JobID   string `json:"job_id"`
	RetryOf string `json:"retry_of"`
}
