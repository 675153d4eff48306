// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package api implements the HTTP surface of the upload and transcoding
pipeline on the chi router.

Handler methods are split across files by resource:

  - handlers.go: Handler struct and its dependencies
  - handlers_uploads.go: upload sessions and chunks
  - handlers_transcoding.go: job status, logs, cancel, retry, renditions
  - handlers_quality.go: profile catalog and bandwidth recommendations
  - handlers_websocket.go: live job status stream
  - handlers_health.go: liveness and readiness probes
  - errors.go: mapping of domain errors to status, code and client action

# Responses

Every JSON response uses models.APIResponse. Errors carry a machine code
and, in error.details.action, what the client should do next:

	retry_chunk      resend the named chunk; the session is intact
	session_invalid  stop using the session
	fix_request      the request is malformed
	retry_later      transient server-side condition

# Ownership

Every route below /api/v1 except health requires a creator identity (see
package auth). Upload sessions are scoped to their creator. Jobs and
renditions are scoped through their source key, which embeds the creator;
resources of other creators answer 404 rather than 403.
*/
package api
