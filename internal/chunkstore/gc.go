// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

// GCService reclaims value log space left behind by purged chunks.
// It implements suture.Service and runs in the data layer of the
// supervisor tree.
type GCService struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
}

// NewGCService returns a GC loop for db.
func NewGCService(db *badger.DB, interval time.Duration, ratio float64) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &GCService{db: db, interval: interval, ratio: ratio}
}

// Serve runs until ctx is cancelled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.RunOnce(); err != nil {
				logging.Error().Err(err).Msg("Badger value log GC failed")
			}
		}
	}
}

// RunOnce rewrites value log files until Badger reports nothing left to do.
func (g *GCService) RunOnce() error {
	rewrites := 0
	for {
		err := g.db.RunValueLogGC(g.ratio)
		switch {
		case err == nil:
			rewrites++
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			if rewrites > 0 {
				metrics.BadgerGCRuns.WithLabelValues("rewritten").Inc()
				logging.Debug().Int("rewrites", rewrites).Msg("Badger value log GC reclaimed space")
			} else {
				metrics.BadgerGCRuns.WithLabelValues("noop").Inc()
			}
			return nil
		default:
			metrics.BadgerGCRuns.WithLabelValues("error").Inc()
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (g *GCService) String() string {
	return "badger-gc"
}
