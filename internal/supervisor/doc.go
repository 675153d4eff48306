// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package supervisor runs the long-lived services of the server under a
suture v4 supervision tree.

	mediaforge
	├── data-layer
	│   ├── upload-sweeper
	│   ├── badger-gc
	│   ├── transcode-pool
	│   └── cdn-reconciler
	├── messaging-layer
	│   ├── event-router
	│   └── websocket-hub
	└── api-layer
	    └── http-server

Every service implements suture.Service:

	Serve(ctx context.Context) error
	String() string

A service returning an error is restarted with backoff; returning
suture.ErrDoNotRestart removes it. Cancelling the context passed to
SupervisorTree.Serve stops the services, each bounded by
TreeConfig.ShutdownTimeout.

Supervisor events (failures, restarts, backoff) are logged through
sutureslog, which takes a *slog.Logger; logging.NewSlogLogger bridges it to
zerolog.

Package services holds adapters for components that do not implement
suture.Service themselves, such as *http.Server.
*/
package supervisor
