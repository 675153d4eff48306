// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package upload

import (
	"context"
	"time"

	"github.com/tomtom215/mediaforge/internal/logging"
)

// Sweeper periodically expires stale sessions and retries failed
// source_ready announcements. It implements suture.Service.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
}

// NewSweeper runs m's housekeeping every interval.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{manager: m, interval: interval}
}

// Serve runs until ctx is cancelled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	if _, err := s.manager.ExpireStale(ctx, s.manager.now()); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Upload session sweep failed")
	}
	if err := s.manager.AnnouncePending(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Retrying source announcements failed")
	}
}

func (s *Sweeper) String() string {
	return "upload-sweeper"
}
