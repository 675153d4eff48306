// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
	"github.com/tomtom215/mediaforge/internal/quality"
)

// EventPublisher publishes job status and rendition events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Tracker is the single owner of job state. Every transition goes through
// it under a per-job lock; workers only report.
type Tracker struct {
	repo      Repository
	registry  *quality.Registry
	publisher EventPublisher
	now       func() time.Time

	locks   keyLocks
	claimMu sync.Mutex

	mu      sync.Mutex
	running map[string]context.CancelFunc

	wake chan struct{}
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock replaces time.Now, for tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. publisher may be nil.
func NewTracker(repo Repository, registry *quality.Registry, publisher EventPublisher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		now:       time.Now,
		running:   make(map[string]context.CancelFunc),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Registry returns the quality catalog jobs are created from.
func (t *Tracker) Registry() *quality.Registry {
	return t.registry
}

// Wake is signalled whenever new work is queued.
func (t *Tracker) Wake() <-chan struct{} {
	return t.wake
}

func (t *Tracker) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Tracker) timestamp() time.Time {
	return t.now().UTC()
}

// Enqueue creates one queued job per quality profile for sourceKey and
// returns their IDs. contentType is the upload's validated media type and
// selects the image or video pipeline. Calling it again for the same
// source returns the existing jobs instead of creating new ones.
func (t *Tracker) Enqueue(ctx context.Context, sourceKey, contentType string) ([]string, error) {
	sourceKey = strings.TrimSpace(sourceKey)
	if sourceKey == "" {
		return nil, ErrInvalidSource
	}

	unlock := t.locks.lock("source:" + sourceKey)
	defer unlock()

	existing, err := t.repo.ListBySource(ctx, sourceKey)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		ids := make([]string, 0, len(existing))
		for _, j := range existing {
			ids = append(ids, j.ID)
		}
		return ids, nil
	}

	now := t.timestamp()
	profiles := t.registry.List()
	jobs := make([]*Job, 0, len(profiles))
	for _, p := range profiles {
		jobs = append(jobs, &Job{
			ID:          uuid.NewString(),
			SourceKey:   sourceKey,
			ContentType: contentType,
			Profile:     p.Name,
			Status:      StatusQueued,
			Attempt:     1,
			QueuedAt:    now,
			UpdatedAt:   now,
		})
	}
	if err := t.repo.InsertJobs(ctx, jobs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
		metrics.RecordJobTransition(j.Profile, string(StatusQueued))
		t.log(ctx, j.ID, "info", fmt.Sprintf("queued for profile %s", j.Profile))
		t.publishStatus(ctx, j, "")
	}

	logging.Ctx(ctx).Info().Str("source_key", sourceKey).Int("jobs", len(jobs)).Msg("Transcoding jobs queued")
	t.signal()
	return ids, nil
}

// update loads a job under its lock, applies fn and saves the result.
// fn returns false to leave the job untouched.
func (t *Tracker) update(ctx context.Context, jobID string, fn func(j *Job) (bool, error)) (*Job, bool, error) {
	unlock := t.locks.lock(jobID)
	defer unlock()

	job, err := t.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	changed, err := fn(job)
	if err != nil || !changed {
		return job, false, err
	}
	job.UpdatedAt = t.timestamp()
	if err := t.repo.UpdateJob(ctx, job); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Claim hands the oldest queued job to a worker, moving it to running.
// It returns nil when nothing is queued.
func (t *Tracker) Claim(ctx context.Context) (*Job, error) {
	t.claimMu.Lock()
	defer t.claimMu.Unlock()

	ids, err := t.repo.QueuedIDs(ctx, 8)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		job, changed, err := t.update(ctx, id, func(j *Job) (bool, error) {
			if j.Status != StatusQueued {
				return false, nil
			}
			started := t.timestamp()
			j.Status = StatusRunning
			j.StartedAt = &started
			return true, nil
		})
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if changed {
			metrics.RecordJobTransition(job.Profile, string(StatusRunning))
			t.log(ctx, job.ID, "info", "started")
			t.publishStatus(ctx, job, "")
			return job.Clone(), nil
		}
	}
	return nil, nil
}

// Advance records progress for a job. The first report moves a queued job
// to running. Progress is clamped to 0..99; 100 is reserved for Complete.
// A report lower than the recorded value is counted, logged and rejected
// with ErrProgressRegression without changing state.
func (t *Tracker) Advance(ctx context.Context, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 99 {
		progress = 99
	}

	var regressed int
	job, changed, err := t.update(ctx, jobID, func(j *Job) (bool, error) {
		if j.Status.Terminal() {
			return false, fmt.Errorf("%w: job %s is %s", ErrInvalidJobState, j.ID, j.Status)
		}
		if progress < j.Progress {
			regressed = j.Progress
			return false, ErrProgressRegression
		}
		transitioned := false
		if j.Status == StatusQueued {
			started := t.timestamp()
			j.Status = StatusRunning
			j.StartedAt = &started
			transitioned = true
		}
		if progress == j.Progress && !transitioned {
			return false, nil
		}
		j.Progress = progress
		return true, nil
	})
	if errors.Is(err, ErrProgressRegression) {
		metrics.TranscodeProgressRegressions.Inc()
		logging.Ctx(ctx).Warn().Str("job_id", jobID).Int("reported", progress).Int("recorded", regressed).
			Msg("Ignoring progress regression")
		return err
	}
	if err != nil {
		return err
	}
	if changed {
		t.publishStatus(ctx, job, "")
	}
	return nil
}

// Complete marks a running job completed with progress 100, records its
// rendition and publishes transcode.rendition_ready.
func (t *Tracker) Complete(ctx context.Context, jobID, outputKey string) error {
	if strings.TrimSpace(outputKey) == "" {
		return ErrEmptyOutputKey
	}

	unlock := t.locks.lock(jobID)
	job, err := t.repo.GetJob(ctx, jobID)
	if err != nil {
		unlock()
		return err
	}
	if job.Status != StatusRunning {
		unlock()
		return fmt.Errorf("%w: cannot complete %s job %s", ErrInvalidJobState, job.Status, jobID)
	}

	now := t.timestamp()
	job.Status = StatusCompleted
	job.Progress = 100
	job.OutputKey = outputKey
	job.FinishedAt = &now
	job.UpdatedAt = now
	rendition := &Rendition{
		JobID:     job.ID,
		SourceKey: job.SourceKey,
		Profile:   job.Profile,
		OutputKey: outputKey,
		CreatedAt: now,
	}
	err = t.repo.CompleteJob(ctx, job, rendition)
	unlock()
	if err != nil {
		return err
	}

	t.detach(jobID)
	metrics.RecordJobTransition(job.Profile, string(StatusCompleted))
	if job.StartedAt != nil {
		metrics.TranscodeJobDuration.WithLabelValues(job.Profile).Observe(now.Sub(*job.StartedAt).Seconds())
	}
	t.log(ctx, jobID, "info", "completed: "+outputKey)
	t.publishStatus(ctx, job, "")

	if t.publisher != nil {
		ev := events.RenditionReady{
			JobID:     job.ID,
			SourceKey: job.SourceKey,
			Profile:   job.Profile,
			OutputKey: outputKey,
			CreatedAt: now,
		}
		if err := t.publisher.Publish(ctx, events.TopicRenditionReady, ev); err != nil {
			// The CDN reconciler picks unpublished renditions up later.
			logging.Ctx(ctx).Error().Err(err).Str("job_id", jobID).Msg("Failed to announce rendition")
		}
	}
	return nil
}

// Fail moves a queued or running job to failed. Progress stays where it was.
func (t *Tracker) Fail(ctx context.Context, jobID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}

	job, _, err := t.update(ctx, jobID, func(j *Job) (bool, error) {
		if j.Status.Terminal() {
			return false, fmt.Errorf("%w: cannot fail %s job %s", ErrInvalidJobState, j.Status, j.ID)
		}
		now := t.timestamp()
		j.Status = StatusFailed
		j.FailureReason = reason
		j.FinishedAt = &now
		return true, nil
	})
	if err != nil {
		return err
	}

	metrics.RecordJobTransition(job.Profile, string(StatusFailed))
	t.log(ctx, jobID, "error", "failed: "+reason)
	t.publishStatus(ctx, job, "")
	logging.Ctx(ctx).Warn().Str("job_id", jobID).Str("profile", job.Profile).Str("reason", reason).Msg("Transcoding job failed")
	return nil
}

// Cancel fails the job with reason "cancelled" and stops its worker.
func (t *Tracker) Cancel(ctx context.Context, jobID string) error {
	if err := t.Fail(ctx, jobID, ReasonCancelled); err != nil {
		return err
	}
	t.mu.Lock()
	cancel := t.running[jobID]
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Retry queues a new attempt of a failed job and returns it.
func (t *Tracker) Retry(ctx context.Context, jobID string) (*Job, error) {
	unlock := t.locks.lock(jobID)
	prev, err := t.repo.GetJob(ctx, jobID)
	unlock()
	if err != nil {
		return nil, err
	}
	if prev.Status != StatusFailed {
		return nil, fmt.Errorf("%w: only failed jobs can be retried, %s is %s", ErrInvalidJobState, jobID, prev.Status)
	}

	// Serialized per source so two concurrent retries cannot both pass the
	// check below.
	unlockSource := t.locks.lock("source:" + prev.SourceKey)
	defer unlockSource()

	siblings, err := t.repo.ListBySource(ctx, prev.SourceKey)
	if err != nil {
		return nil, err
	}
	for _, j := range siblings {
		if j.RetryOf == prev.ID {
			return nil, fmt.Errorf("%w: %s was already retried as %s", ErrInvalidJobState, jobID, j.ID)
		}
	}

	now := t.timestamp()
	job := &Job{
		ID:          uuid.NewString(),
		SourceKey:   prev.SourceKey,
		ContentType: prev.ContentType,
		Profile:     prev.Profile,
		Status:      StatusQueued,
		Attempt:     prev.Attempt + 1,
		RetryOf:     prev.ID,
		QueuedAt:    now,
		UpdatedAt:   now,
	}
	if err := t.repo.InsertJobs(ctx, []*Job{job}); err != nil {
		return nil, err
	}

	metrics.RecordJobTransition(job.Profile, string(StatusQueued))
	t.log(ctx, job.ID, "info", fmt.Sprintf("queued as attempt %d, retrying %s", job.Attempt, prev.ID))
	t.publishStatus(ctx, job, "")
	t.signal()
	return job, nil
}

// Status returns the job's state and progress.
func (t *Tracker) Status(ctx context.Context, jobID string) (StatusView, error) {
	job, err := t.repo.GetJob(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{Status: job.Status, Progress: job.Progress}, nil
}

// Get returns the full job record.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Job, error) {
	return t.repo.GetJob(ctx, jobID)
}

// ListBySource returns every job (all attempts) for a source key.
func (t *Tracker) ListBySource(ctx context.Context, sourceKey string) ([]*Job, error) {
	if strings.TrimSpace(sourceKey) == "" {
		return nil, ErrInvalidSource
	}
	return t.repo.ListBySource(ctx, sourceKey)
}

// HasJobs reports whether any job exists for sourceKey.
func (t *Tracker) HasJobs(ctx context.Context, sourceKey string) (bool, error) {
	jobs, err := t.ListBySource(ctx, sourceKey)
	if err != nil {
		return false, err
	}
	return len(jobs) > 0, nil
}

// Logs returns the job's log lines in the order they were written.
func (t *Tracker) Logs(ctx context.Context, jobID string) ([]LogLine, error) {
	if _, err := t.repo.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return t.repo.Logs(ctx, jobID)
}

// AppendLog adds a line to the job's log.
func (t *Tracker) AppendLog(ctx context.Context, jobID, level, message string) {
	t.log(ctx, jobID, level, message)
}

func (t *Tracker) log(ctx context.Context, jobID, level, message string) {
	line := LogLine{Time: t.timestamp(), Level: level, Message: message}
	if err := t.repo.AppendLog(ctx, jobID, line); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("job_id", jobID).Msg("Failed to write job log line")
	}
}

// Renditions returns the renditions produced for a source.
func (t *Tracker) Renditions(ctx context.Context, sourceKey string) ([]*Rendition, error) {
	if strings.TrimSpace(sourceKey) == "" {
		return nil, ErrInvalidSource
	}
	return t.repo.ListRenditions(ctx, sourceKey)
}

// Rendition returns the rendition produced by a job.
func (t *Tracker) Rendition(ctx context.Context, jobID string) (*Rendition, error) {
	return t.repo.GetRendition(ctx, jobID)
}

// Unpublished lists renditions that have no CDN URL yet, oldest first.
func (t *Tracker) Unpublished(ctx context.Context, limit int) ([]*Rendition, error) {
	return t.repo.ListUnpublished(ctx, limit)
}

// MarkPublished records the rendition's CDN URL. Publishing is write-once:
// repeating the same URL is a no-op, a different URL is ErrAlreadyPublished.
func (t *Tracker) MarkPublished(ctx context.Context, jobID, url string) error {
	unlock := t.locks.lock(jobID)
	rend, err := t.repo.GetRendition(ctx, jobID)
	if err != nil {
		unlock()
		return err
	}
	if rend.Ready {
		unlock()
		if rend.CDNURL == url {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadyPublished, jobID)
	}

	now := t.timestamp()
	rend.CDNURL = url
	rend.Ready = true
	rend.PublishedAt = &now
	err = t.repo.UpdateRendition(ctx, rend)
	unlock()
	if err != nil {
		return err
	}

	t.log(ctx, jobID, "info", "published: "+url)
	if job, err := t.repo.GetJob(ctx, jobID); err == nil {
		t.publishStatus(ctx, job, url)
	}
	return nil
}

// FailInterrupted fails jobs left running by a previous process. Call it
// once at startup, before the pool starts.
func (t *Tracker) FailInterrupted(ctx context.Context) (int, error) {
	jobs, err := t.repo.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if err := t.Fail(ctx, j.ID, ReasonInterrupted); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("job_id", j.ID).Msg("Failed to mark interrupted job")
			continue
		}
		n++
	}
	return n, nil
}

// attach registers the cancel func of a job's worker. It reports false,
// and cancels, when the job already left running.
func (t *Tracker) attach(ctx context.Context, jobID string, cancel context.CancelFunc) bool {
	t.mu.Lock()
	t.running[jobID] = cancel
	t.mu.Unlock()

	job, err := t.repo.GetJob(ctx, jobID)
	if err != nil || job.Status != StatusRunning {
		t.detach(jobID)
		cancel()
		return false
	}
	return true
}

func (t *Tracker) detach(jobID string) {
	t.mu.Lock()
	delete(t.running, jobID)
	t.mu.Unlock()
}

func (t *Tracker) publishStatus(ctx context.Context, j *Job, cdnURL string) {
	if t.publisher == nil {
		return
	}
	ev := events.JobStatus{
		JobID:         j.ID,
		SourceKey:     j.SourceKey,
		Profile:       j.Profile,
		Status:        string(j.Status),
		Progress:      j.Progress,
		FailureReason: j.FailureReason,
		CDNURL:        cdnURL,
		UpdatedAt:     j.UpdatedAt,
	}
	if err := t.publisher.Publish(ctx, events.TopicJobStatus, ev); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("job_id", j.ID).Msg("Job status event dropped")
	}
}
