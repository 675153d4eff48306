// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package auth establishes caller identity for the HTTP API.

Every upload session belongs to a creator, so every authenticated request
must carry a creator ID. Two modes are supported (security.auth_mode):

 1. jwt (default): an HS256 bearer token signed with security.jwt_secret.
    The sub claim is the creator ID. When security.jwt_issuer is set the
    iss claim must match.
 2. header: the X-Creator-ID header is trusted as-is. Config validation
    refuses this mode in production.

The middleware stores the creator ID in the request context:

	creatorID, ok := auth.CreatorFromContext(r.Context())

Rejections are written as the standard JSON error envelope with code
UNAUTHORIZED.
*/
package auth
