// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Command server runs the Mediaforge upload and transcoding pipeline.

Creators upload media in resumable chunks; a finished upload is stored in
object storage, transcoded by ffmpeg into every configured quality profile,
and each rendition is published behind the CDN. Job progress is streamed to
clients over websockets.

# Startup

	1. Configuration (koanf: defaults, config.yaml, environment)
	2. BadgerDB for chunks and upload sessions
	3. Object storage (local, s3 or azure-blob)
	4. DuckDB for transcoding jobs and renditions
	5. Event bus (in-memory, external NATS, or embedded NATS JetStream)
	6. Crash recovery: interrupted finalizations and transcodes
	7. Supervisor tree with every long-running service

# Supervision

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

# Configuration

Every key can be set in config.yaml or through the environment, for example:

	SERVER_PORT=8080
	AUTH_MODE=jwt
	JWT_SECRET=$(openssl rand -base64 48)
	STORAGE_TYPE=s3
	STORAGE_S3_BUCKET=media
	EVENTS_TRANSPORT=nats
	EVENTS_EMBEDDED_SERVER=true
	CDN_DOMAIN=cdn.example.com
	CDN_ZONE_ID=...
	CDN_API_TOKEN=...

Without CDN_API_TOKEN renditions still get CDN URLs but cache purges and
TTL rules are skipped.

# Signals

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
in-flight requests, running transcodes are cancelled, and the stores are
closed after every service stopped.
*/
package main
