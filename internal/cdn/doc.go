// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package cdn publishes renditions to the content delivery network.
//
// Publish is a pure function from (output key, quality) to a playback URL.
// Cache purges and TTL rules go through CacheAPI and are best-effort: their
// failures are logged and counted but never fail a publish.
//
// PublishHandler runs as the follow-up step after a job completes, driven
// by transcode.rendition_ready. Reconciler catches renditions whose event
// never arrived.
package cdn
