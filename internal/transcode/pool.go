// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

// Pool runs queued jobs on a fixed number of workers. It implements
// suture.Service. Workers report progress and outcomes through the Tracker
// and never write job state themselves.
type Pool struct {
	tracker      *Tracker
	runner       Runner
	workers      int
	jobTimeout   time.Duration
	pollInterval time.Duration
}

// NewPool creates a pool from the transcode configuration.
func NewPool(cfg config.TranscodeConfig, tracker *Tracker, runner Runner) *Pool {
	p := &Pool{
		tracker:      tracker,
		runner:       runner,
		workers:      cfg.Workers,
		jobTimeout:   cfg.JobTimeout,
		pollInterval: cfg.PollInterval,
	}
	if p.workers <= 0 {
		p.workers = 2
	}
	if p.jobTimeout <= 0 {
		p.jobTimeout = time.Hour
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 5 * time.Second
	}
	return p
}

// Serve runs the workers until ctx is cancelled.
func (p *Pool) Serve(ctx context.Context) error {
	logging.Info().Int("workers", p.workers).Dur("job_timeout", p.jobTimeout).Msg("Transcode pool started")

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) String() string {
	return "transcode-pool"
}

func (p *Pool) work(ctx context.Context, id int) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before sleeping again.
		for ctx.Err() == nil {
			job, err := p.tracker.Claim(ctx)
			if err != nil {
				logging.Error().Err(err).Int("worker", id).Msg("Failed to claim transcoding job")
				break
			}
			if job == nil {
				break
			}
			// More work may be queued; let an idle worker look.
			p.tracker.signal()
			p.run(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-p.tracker.Wake():
		case <-ticker.C:
		}
	}
}

// run executes one claimed job under its own timeout.
func (p *Pool) run(ctx context.Context, job *Job) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	logger := logging.Ctx(ctx).With().Str("job_id", job.ID).Str("profile", job.Profile).Logger()

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()
	if !p.tracker.attach(ctx, job.ID, cancel) {
		logger.Info().Msg("Job left running before the worker started")
		return
	}
	defer p.tracker.detach(job.ID)

	metrics.TranscodeJobsRunning.Inc()
	defer metrics.TranscodeJobsRunning.Dec()

	profile, ok := p.tracker.Registry().Get(job.Profile)
	if !ok {
		p.fail(ctx, job.ID, fmt.Sprintf("unknown quality profile %q", job.Profile))
		return
	}

	task := Task{
		JobID:     job.ID,
		SourceKey:   job.SourceKey,
		ContentType: job.ContentType,
		Profile:     profile,
		Attempt:     job.Attempt,
		Log: func(level, message string) {
			p.tracker.AppendLog(ctx, job.ID, level, message)
		},
	}
	progress := func(percent int) {
		err := p.tracker.Advance(ctx, job.ID, percent)
		if errors.Is(err, ErrInvalidJobState) || errors.Is(err, ErrJobNotFound) {
			// Cancelled or failed elsewhere; stop encoding.
			cancel()
		}
	}

	logger.Info().Str("source_key", job.SourceKey).Int("attempt", job.Attempt).Msg("Transcoding started")
	outputKey, err := p.runner.Run(jobCtx, task, progress)

	switch {
	case err == nil:
		if err := p.tracker.Complete(ctx, job.ID, outputKey); err != nil {
			logger.Warn().Err(err).Msg("Could not complete job")
			return
		}
		logger.Info().Str("output_key", outputKey).Msg("Transcoding completed")
	case ctx.Err() != nil:
		// Shutdown. The job is failed as interrupted on the next start.
		logger.Info().Msg("Transcoding interrupted by shutdown")
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		p.fail(ctx, job.ID, fmt.Sprintf("timed out after %s", p.jobTimeout))
	default:
		p.fail(ctx, job.ID, err.Error())
	}
}

func (p *Pool) fail(ctx context.Context, jobID, reason string) {
	err := p.tracker.Fail(ctx, jobID, reason)
	if err != nil && !errors.Is(err, ErrInvalidJobState) {
		logging.Ctx(ctx).Error().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
	}
}
