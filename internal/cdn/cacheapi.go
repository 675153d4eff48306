// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package cdn

import "context"

// CacheAPI is the CDN's cache management surface.
type CacheAPI interface {
	// Purge invalidates cached copies of the given absolute URLs.
	Purge(ctx context.Context, urls []string) error
	// SetCacheTTL caches URLs matching pattern at the edge for seconds.
	SetCacheTTL(ctx context.Context, pattern string, seconds int) error
}

// NoopCacheAPI is used when no CDN API token is configured.
type NoopCacheAPI struct{}

func (NoopCacheAPI) Purge(context.Context, []string) error { return nil }
func (NoopCacheAPI) SetCacheTTL(context.Context, string, int) error { return nil }
