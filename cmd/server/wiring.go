// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/mediaforge/internal/api"
	"github.com/tomtom215/mediaforge/internal/cdn"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/database"
	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/objectstore"
	"github.com/tomtom215/mediaforge/internal/transcode"
	ws "github.com/tomtom215/mediaforge/internal/websocket"
)

// healthProbeKey is never written; a Stat answering "not found" proves the
// backend is reachable.
const healthProbeKey = ".mediaforge-health"

// newCacheAPI selects the Cloudflare client when credentials are set.
func newCacheAPI(cfg config.CDNConfig) cdn.CacheAPI {
	if cfg.APIToken == "" || cfg.ZoneID == "" {
		logging.Warn().Msg("CDN API token or zone not configured; cache purges and TTL rules are disabled")
		return cdn.NoopCacheAPI{}
	}
	return cdn.NewCloudflareAPI(cfg)
}

// registerConsumers attaches every event consumer to router.
func registerConsumers(router *events.Router, tracker *transcode.Tracker, publisher *cdn.Publisher, hub *ws.Hub) error {
	consumers := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{transcode.ConsumerName, events.TopicSourceReady, transcode.SourceReadyHandler(tracker)},
		{cdn.ConsumerName, events.TopicRenditionReady, cdn.PublishHandler(publisher, tracker)},
		{ws.ConsumerName, events.TopicJobStatus, ws.JobStatusHandler(hub)},
	}
	for _, c := range consumers {
		if err := router.AddConsumer(c.name, c.topic, c.handler); err != nil {
			return fmt.Errorf("register consumer %s on %s: %w", c.name, c.topic, err)
		}
		logging.Info().Str("consumer", c.name).Str("topic", c.topic).Msg("Event consumer registered")
	}
	return nil
}

// addHealthChecks registers the readiness dependencies.
func addHealthChecks(h *api.Handler, db *database.DB, kv *badger.DB, objects objectstore.Store, bus *events.Bus, router *events.Router) {
	h.AddHealthCheck("database", db.Ping)
	h.AddHealthCheck("chunkstore", func(context.Context) error {
		if kv.IsClosed() {
			return errors.New("badger is closed")
		}
		return nil
	})
	h.AddHealthCheck("objectstore", func(ctx context.Context) error {
		_, err := objects.Stat(ctx, healthProbeKey)
		if err == nil || errors.Is(err, objectstore.ErrObjectNotFound) {
			return nil
		}
		return err
	})
	h.AddHealthCheck("events", func(context.Context) error {
		if !bus.Connected() {
			return events.ErrNotConnected
		}
		return nil
	})
	h.AddHealthCheck("events_router", func(context.Context) error {
		return router.Healthy()
	})
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
