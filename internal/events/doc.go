// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package events carries domain events between the upload, transcoding and
CDN components.

# Topics

	upload.source_ready        an upload was finalized into object storage
	transcode.rendition_ready  a transcoding job produced an output
	transcode.job_status       a job changed state or progress

# Transports

The default transport is an in-process Watermill GoChannel. Setting
events.transport=nats publishes to the MEDIAFORGE JetStream stream through
watermill-nats, either on an external server (events.nats_url) or on an
embedded nats-server (events.embedded_server).

# Publishing

Bus.Connect must succeed before Bus.Publish. Publishes pass through a
gobreaker circuit breaker so a dead broker fails fast instead of blocking
callers. Payloads are JSON; the message UUID is the JetStream dedup id.

# Consuming

Router wraps the Watermill router with Recoverer, Retry and PoisonQueue
middleware. Handle adapts a typed function into a handler:

	router.AddConsumer("transcode-enqueue", events.TopicSourceReady,
	    events.Handle(events.TopicSourceReady, func(ctx context.Context, ev events.SourceReady) error {
	        _, err := tracker.Enqueue(ctx, ev.SourceKey, ev.ContentType)
	        return err
	    }))
*/
package events
