// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package cdn

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
	"github.com/tomtom215/mediaforge/internal/transcode"
)

// ConsumerName is the durable consumer publishing renditions.
const ConsumerName = "cdn-publish"

// RenditionStore is the part of transcode.Tracker the publisher needs.
type RenditionStore interface {
	MarkPublished(ctx context.Context, jobID, url string) error
	Unpublished(ctx context.Context, limit int) ([]*transcode.Rendition, error)
}

// publishRendition derives the URL, sets the edge TTL, purges any stale
// copy left by an earlier attempt at the same key and records the URL.
func publishRendition(ctx context.Context, p *Publisher, store RenditionStore, jobID, outputKey, profile string) error {
	url, err := p.Publish(outputKey, profile)
	if err != nil {
		return err
	}
	p.ConfigureCaching(ctx, outputKey, p.DefaultTTLSeconds())
	p.PurgeCache(ctx, []string{outputKey})

	err = store.MarkPublished(ctx, jobID, url)
	if errors.Is(err, transcode.ErrAlreadyPublished) {
		logging.Ctx(ctx).Warn().Str("job_id", jobID).Msg("Rendition already published under another URL")
		return nil
	}
	if err != nil {
		return err
	}
	metrics.CDNRenditionsPublished.Inc()
	logging.Ctx(ctx).Info().Str("job_id", jobID).Str("url", url).Msg("Rendition published")
	return nil
}

// PublishHandler consumes transcode.rendition_ready. An error makes the
// router back off and redeliver; the job itself is already completed.
func PublishHandler(p *Publisher, store RenditionStore) message.NoPublishHandlerFunc {
	return events.Handle(events.TopicRenditionReady, func(ctx context.Context, ev events.RenditionReady) error {
		err := publishRendition(ctx, p, store, ev.JobID, ev.OutputKey, ev.Profile)
		if errors.Is(err, ErrEmptyKey) || errors.Is(err, ErrEmptyQuality) || errors.Is(err, transcode.ErrRenditionNotFound) {
			// Not fixable by redelivery.
			logging.Ctx(ctx).Error().Err(err).Str("job_id", ev.JobID).Msg("Dropping unpublishable rendition event")
			return nil
		}
		return err
	})
}

// Reconciler publishes renditions whose rendition_ready event was lost,
// for example because the bus was down when the job completed. It
// implements suture.Service.
type Reconciler struct {
	publisher *Publisher
	store     RenditionStore
	interval  time.Duration
	minAge    time.Duration
	now       func() time.Time
}

// NewReconciler checks for unpublished renditions every interval. Only
// renditions older than one interval are touched so the event path gets
// the first chance.
func NewReconciler(p *Publisher, store RenditionStore, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{publisher: p, store: store, interval: interval, minAge: interval, now: time.Now}
}

// Serve runs until ctx is cancelled.
func (r *Reconciler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *Reconciler) String() string {
	return "cdn-reconciler"
}

// reconcile returns how many renditions were published.
func (r *Reconciler) reconcile(ctx context.Context) int {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	pending, err := r.store.Unpublished(ctx, 100)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Listing unpublished renditions failed")
		return 0
	}

	cutoff := r.now().Add(-r.minAge)
	n := 0
	for _, rend := range pending {
		if rend.CreatedAt.After(cutoff) {
			continue
		}
		if err := publishRendition(ctx, r.publisher, r.store, rend.JobID, rend.OutputKey, rend.Profile); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("job_id", rend.JobID).Msg("Reconciling rendition failed")
			continue
		}
		n++
	}
	return n
}
