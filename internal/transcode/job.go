// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"errors"
	"time"
)

var (
	ErrInvalidSource      = errors.New("source key is required")
	ErrEmptyOutputKey     = errors.New("output key is required")
	ErrJobNotFound        = errors.New("transcoding job not found")
	ErrInvalidJobState    = errors.New("invalid job state transition")
	ErrProgressRegression = errors.New("progress lower than recorded value")
	ErrRenditionNotFound  = errors.New("rendition not found")
	ErrAlreadyPublished   = errors.New("rendition already published with a different URL")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Failure reasons set by the service itself.
const (
	ReasonCancelled   = "cancelled"
	ReasonInterrupted = "interrupted by restart"
)

// Job is one source encoded at one quality profile.
type Job struct {
	ID            string
	SourceKey     string
	ContentType   string
	Profile       string
	Status        Status
	Progress      int
	OutputKey     string
	FailureReason string
	Attempt       int
	RetryOf       string
	QueuedAt      time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	UpdatedAt     time.Time
}

// Clone returns a copy safe to hand to callers.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// StatusView is the answer to a status query.
type StatusView struct {
	Status   Status
	Progress int
}

// Rendition is the output of a completed job. CDNURL and Ready are set once
// when the rendition is published.
type Rendition struct {
	JobID       string
	SourceKey   string
	Profile     string
	OutputKey   string
	CDNURL      string
	Ready       bool
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// LogLine is one entry in a job's processing log.
type LogLine struct {
	Time    time.Time
	Level   string
	Message string
}
