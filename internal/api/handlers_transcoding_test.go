// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/transcode"
)

const aliceSource = "sources/alice/s1/clip.mp4"

func seedJobs(env *testEnv) {
	env.jobs.add(&transcode.Job{
		ID: "job-720", SourceKey: aliceSource, Profile: "720p",
		Status: transcode.StatusRunning, Progress: 40, Attempt: 1, QueuedAt: testTime,
	})
	env.jobs.add(&transcode.Job{
		ID: "job-240", SourceKey: aliceSource, Profile: "240p",
		Status: transcode.StatusFailed, FailureReason: "ffmpeg exited 1", Attempt: 1, QueuedAt: testTime,
	})
	env.jobs.logs["job-720"] = []transcode.LogLine{
		{Time: testTime, Level: "info", Message: "started"},
	}
	env.jobs.renditions[aliceSource] = []*transcode.Rendition{
		{JobID: "job-480", SourceKey: aliceSource, Profile: "480p", OutputKey: "renditions/alice/s1/480p.mp4", Ready: true, CreatedAt: testTime},
	}
}

func TestJobStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	seedJobs(env)

	rec := env.do(t, http.MethodGet, "/api/v1/transcoding/job-720/status", "alice", nil)
	var got models.JobStatusResponse
	decodeData(t, rec, &got)
	if got.Status != "running" || got.Progress != 40 {
		t.Errorf("status = %+v", got)
	}
}

func TestJobsOfOtherCreatorsAreHidden(t *testing.T) {
	t.Parallel()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/transcoding/job-720/status"},
		{http.MethodGet, "/api/v1/transcoding/job-720/logs"},
		{http.MethodPost, "/api/v1/transcoding/job-720/cancel"},
		{http.MethodPost, "/api/v1/transcoding/job-240/retry"},
		{http.MethodGet, "/api/v1/transcoding/missing/status"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil)
			seedJobs(env)
			rec := env.do(t, p.method, p.path, "mallory", nil)
			expectError(t, rec, http.StatusNotFound, "JOB_NOT_FOUND", models.ActionFixRequest)
		})
	}
}

func TestJobLogs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	seedJobs(env)

	rec := env.do(t, http.MethodGet, "/api/v1/transcoding/job-720/logs", "alice", nil)
	var got models.JobLogsResponse
	decodeData(t, rec, &got)
	if got.JobID != "job-720" || len(got.Lines) != 1 || got.Lines[0].Message != "started" {
		t.Errorf("logs = %+v", got)
	}
}

func TestCancelJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	seedJobs(env)

	rec := env.do(t, http.MethodPost, "/api/v1/transcoding/job-720/cancel", "alice", nil)
	var got models.JobResponse
	decodeData(t, rec, &got)
	if got.Status != "failed" || got.FailureReason != transcode.ReasonCancelled {
		t.Errorf("cancelled job = %+v", got)
	}
}

func TestCancelFinishedJobConflicts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	seedJobs(env)
	env.jobs.cancelErr = transcode.ErrInvalidJobState

	rec := env.do(t, http.MethodPost, "/api/v1/transcoding/job-240/cancel", "alice", nil)
	expectError(t, rec, http.StatusConflict, "INVALID_JOB_STATE", models.ActionFixRequest)
}

func TestRetryJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	seedJobs(env)

	rec := env.do(t, http.MethodPost, "/api/v1/transcoding/job-240/retry", "alice", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got models.RetryResponse
	decodeData(t, rec, &got)
	if got.RetryOf != "job-240" || got.JobID != "job-240-retry" {
		t.Errorf("retry = %+v", got)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/transcoding/job-240-retry/status" {
		t.Errorf("Location = %q", loc)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/transcoding/job-720/retry", "alice", nil)
	expectError(t, rec, http.StatusConflict, "INVALID_JOB_STATE", models.ActionFixRequest)
}

func TestListJobsAndRenditions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	seedJobs(env)
	q := "?source=" + url.QueryEscape(aliceSource)

	rec := env.do(t, http.MethodGet, "/api/v1/transcoding"+q, "alice", nil)
	var jobs []models.JobResponse
	decodeData(t, rec, &jobs)
	if len(jobs) != 2 {
		t.Errorf("alice sees %d jobs, want 2", len(jobs))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/renditions"+q, "alice", nil)
	var renditions []models.RenditionResponse
	decodeData(t, rec, &renditions)
	if len(renditions) != 1 || renditions[0].Profile != "480p" || !renditions[0].Ready {
		t.Errorf("renditions = %+v", renditions)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/renditions"+q, "mallory", nil)
	renditions = nil
	decodeData(t, rec, &renditions)
	if len(renditions) != 0 {
		t.Errorf("mallory sees %d renditions, want 0", len(renditions))
	}
}

func TestListJobsValidatesSource(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"", "?source=", "?source=%2Fetc%2Fpasswd", "?source=..%2Fsources%2Fx"} {
		t.Run(q, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil)
			rec := env.do(t, http.MethodGet, "/api/v1/transcoding"+q, "alice", nil)
			expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", models.ActionFixRequest)
		})
	}
}
