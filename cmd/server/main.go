// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/tomtom215/mediaforge/internal/api"
	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/cdn"
	"github.com/tomtom215/mediaforge/internal/chunkstore"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/database"
	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/objectstore"
	"github.com/tomtom215/mediaforge/internal/quality"
	"github.com/tomtom215/mediaforge/internal/supervisor"
	"github.com/tomtom215/mediaforge/internal/supervisor/services"
	"github.com/tomtom215/mediaforge/internal/transcode"
	"github.com/tomtom215/mediaforge/internal/upload"
	ws "github.com/tomtom215/mediaforge/internal/websocket"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
	logging.Info().Msg("Mediaforge stopped gracefully")
}

//nolint:gocyclo // sequential wiring
func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("storage", cfg.Storage.Type).
		Str("events", cfg.Events.Transport).
		Msg("Starting Mediaforge")

	if cfg.Security.AuthMode == auth.AuthModeHeader {
		logging.Warn().Msg("AUTH_MODE=header trusts the X-Creator-ID header; use it only behind a trusted gateway or for development")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is disabled")
	}

	// Stores
	kv, err := chunkstore.OpenDB(cfg.ChunkStore)
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing chunk store")
		}
	}()

	objects, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	registry, err := quality.FromConfig(cfg.Quality)
	if err != nil {
		return fmt.Errorf("quality profiles: %w", err)
	}

	// Events
	wmLogger := logging.NewWatermillAdapter()
	bus, err := events.Open(cfg.Events, wmLogger)
	if err != nil {
		return fmt.Errorf("open event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	if err := bus.Connect(ctx); err != nil {
		return err
	}

	// Domain services
	tracker := transcode.NewTracker(transcode.NewDuckDBRepository(db), registry, bus)
	uploads := upload.NewManager(cfg.Upload,
		upload.NewBadgerRepository(kv, cfg.Upload.SessionTTL),
		chunkstore.NewBadgerStore(kv, cfg.ChunkStore.EntryTTL),
		objects, bus,
		upload.WithJobIndex(tracker))
	publisher := cdn.NewPublisher(cfg.CDN, newCacheAPI(cfg.CDN))
	hub := ws.NewHub()

	if n, err := uploads.RecoverInterrupted(ctx); err != nil {
		logging.Error().Err(err).Msg("Recovering interrupted finalizations failed")
	} else if n > 0 {
		logging.Info().Int("sessions", n).Msg("Recovered interrupted finalizations")
	}
	if n, err := tracker.FailInterrupted(ctx); err != nil {
		logging.Error().Err(err).Msg("Failing interrupted transcodes failed")
	} else if n > 0 {
		logging.Warn().Int("jobs", n).Msg("Marked interrupted transcodes as failed")
	}

	router, err := events.NewRouter(events.RouterConfigFrom(cfg.Events), bus, wmLogger)
	if err != nil {
		return err
	}
	if err := registerConsumers(router, tracker, publisher, hub); err != nil {
		return err
	}

	// HTTP
	var jwtManager *auth.JWTManager
	if cfg.Security.AuthMode == auth.AuthModeJWT {
		if jwtManager, err = auth.NewJWTManager(&cfg.Security); err != nil {
			return fmt.Errorf("jwt: %w", err)
		}
	}
	handler := api.NewHandler(cfg, uploads, tracker, registry, hub)
	addHealthChecks(handler, db, kv, objects, bus, router)
	httpRouter := api.NewRouter(handler,
		auth.NewMiddleware(jwtManager, cfg.Security.AuthMode),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Security)))
	server := newHTTPServer(cfg.Server, httpRouter.Setup())

	// Supervision
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddDataService(upload.NewSweeper(uploads, cfg.Upload.SweepInterval))
	tree.AddDataService(chunkstore.NewGCService(kv, cfg.ChunkStore.GCInterval, cfg.ChunkStore.GCDiscardRatio))
	tree.AddDataService(transcode.NewPool(cfg.Transcode, tracker, transcode.NewFFmpegRunner(cfg.Transcode, objects)))
	tree.AddDataService(cdn.NewReconciler(publisher, tracker, 0))
	tree.AddMessagingService(router)
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))

	logging.Info().Msg("Starting supervisor tree")
	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	if err := router.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing event router")
	}
	return nil
}
