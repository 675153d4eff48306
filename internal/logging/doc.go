// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package logging provides the process-wide zerolog logger for Mediaforge.
//
// Every component logs through this package so that upload, transcoding,
// CDN and event bus output share one structured JSON stream.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("session_id", id).Msg("Upload session created")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Chunk rejected")
//
// # Adapters
//
// Two adapters route third-party logging into zerolog:
//
//   - SlogHandler implements slog.Handler for sutureslog (supervisor tree)
//   - WatermillAdapter implements watermill.LoggerAdapter for the event bus
//
// # Context
//
// Request and correlation IDs are stored on the context by the HTTP
// middleware and carried into event handlers; Ctx(ctx) attaches them to
// every log line.
//
// # Configuration
//
//	LOG_LEVEL   trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  json, console (default: json)
//	LOG_CALLER  true, false (default: false)
package logging
