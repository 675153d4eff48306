// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package middleware provides the HTTP middleware shared by every route.

  - RequestID: accepts or generates X-Request-ID, accepts or generates
    X-Correlation-ID, echoes both and stores them on the request context
    so logging.Ctx picks them up. The correlation ID travels on to the
    event bus and the transcode workers.
  - PrometheusMetrics: counts requests and observes latency labelled by
    the chi route pattern, never the raw path, so session and job IDs do
    not explode label cardinality.

Both are plain func(http.Handler) http.Handler and plug into chi's Use.
*/
package middleware
