// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/transcode"
	"github.com/tomtom215/mediaforge/internal/upload"
)

// sourceQuery is the ?source= filter of the listing endpoints.
type sourceQuery struct {
	Source string `json:"source" validate:"required,objectkey"`
}

func jobResponse(j *transcode.Job) models.JobResponse {
	return models.JobResponse{
		JobID:         j.ID,
		SourceKey:     j.SourceKey,
		Profile:       j.Profile,
		Status:        string(j.Status),
		Progress:      j.Progress,
		OutputKey:     j.OutputKey,
		FailureReason: j.FailureReason,
		Attempt:       j.Attempt,
		RetryOf:       j.RetryOf,
		QueuedAt:      j.QueuedAt,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
	}
}

func renditionResponse(rd *transcode.Rendition) models.RenditionResponse {
	return models.RenditionResponse{
		JobID:       rd.JobID,
		SourceKey:   rd.SourceKey,
		Profile:     rd.Profile,
		OutputKey:   rd.OutputKey,
		CDNURL:      rd.CDNURL,
		Ready:       rd.Ready,
		CreatedAt:   rd.CreatedAt,
		PublishedAt: rd.PublishedAt,
	}
}

func ownsSource(creator, sourceKey string) bool {
	return strings.HasPrefix(sourceKey, upload.CreatorPrefix(creator))
}

// ownedJob loads the job named by the route and hides jobs of other
// creators behind JOB_NOT_FOUND.
func (h *Handler) ownedJob(w http.ResponseWriter, r *http.Request) (*transcode.Job, bool) {
	creator, ok := creatorID(w, r)
	if !ok {
		return nil, false
	}
	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.Get(r.Context(), jobID)
	if err == nil && !ownsSource(creator, job.SourceKey) {
		err = fmt.Errorf("%w: %s", transcode.ErrJobNotFound, jobID)
	}
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return job, true
}

// ownedSource reads and authorizes the ?source= parameter.
func ownedSource(w http.ResponseWriter, r *http.Request) (string, bool) {
	creator, ok := creatorID(w, r)
	if !ok {
		return "", false
	}
	q := sourceQuery{Source: r.URL.Query().Get("source")}
	if apiErr := validateRequest(&q); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr)
		return "", false
	}
	if !ownsSource(creator, q.Source) {
		// Indistinguishable from a source without jobs.
		return "", true
	}
	return q.Source, true
}

// JobStatus handles GET /api/v1/transcoding/{jobID}/status.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	respondOK(w, r, http.StatusOK, models.JobStatusResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
	})
}

// JobLogs handles GET /api/v1/transcoding/{jobID}/logs.
func (h *Handler) JobLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	lines, err := h.jobs.Logs(r.Context(), job.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := models.JobLogsResponse{JobID: job.ID, Lines: make([]models.JobLogLine, len(lines))}
	for i, l := range lines {
		out.Lines[i] = models.JobLogLine{Time: l.Time, Level: l.Level, Message: l.Message}
	}
	respondOK(w, r, http.StatusOK, out)
}

// CancelJob handles POST /api/v1/transcoding/{jobID}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	if err := h.jobs.Cancel(r.Context(), job.ID); err != nil {
		respondError(w, r, err)
		return
	}
	updated, err := h.jobs.Get(r.Context(), job.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, jobResponse(updated))
}

// RetryJob handles POST /api/v1/transcoding/{jobID}/retry.
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	next, err := h.jobs.Retry(r.Context(), job.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/transcoding/"+next.ID+"/status")
	respondOK(w, r, http.StatusAccepted, models.RetryResponse{JobID: next.ID, RetryOf: job.ID})
}

// ListJobs handles GET /api/v1/transcoding?source=<key>.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	source, ok := ownedSource(w, r)
	if !ok {
		return
	}
	out := []models.JobResponse{}
	if source != "" {
		jobs, err := h.jobs.ListBySource(r.Context(), source)
		if err != nil {
			respondError(w, r, err)
			return
		}
		for _, j := range jobs {
			out = append(out, jobResponse(j))
		}
	}
	respondOK(w, r, http.StatusOK, out)
}

// ListRenditions handles GET /api/v1/renditions?source=<key>.
func (h *Handler) ListRenditions(w http.ResponseWriter, r *http.Request) {
	source, ok := ownedSource(w, r)
	if !ok {
		return
	}
	out := []models.RenditionResponse{}
	if source != "" {
		renditions, err := h.jobs.Renditions(r.Context(), source)
		if err != nil {
			respondError(w, r, err)
			return
		}
		for _, rd := range renditions {
			out = append(out, renditionResponse(rd))
		}
	}
	respondOK(w, r, http.StatusOK, out)
}
