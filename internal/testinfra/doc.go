// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package testinfra starts disposable containers for integration tests.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// # MinIO
//
// MinIOContainer runs an S3 compatible server with a pre-created bucket:
//
//	minio, err := testinfra.NewMinIOContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, minio)
//
//	store, err := objectstore.NewS3Store(ctx, minio.S3Config())
//
// # NATS
//
// NATSContainer runs nats-server with JetStream enabled for exercising the
// event bus against a real broker instead of the embedded server.
package testinfra
