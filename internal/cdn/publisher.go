// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package cdn

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/logging"
)

var (
	ErrEmptyKey     = errors.New("output key is required")
	ErrEmptyQuality = errors.New("quality name is required")
)

// Publisher derives playback URLs and manages edge caching for them.
type Publisher struct {
	domain     string
	api        CacheAPI
	defaultTTL time.Duration
}

// NewPublisher serves renditions from cfg.Domain. api may be nil, which
// disables purges and TTL rules.
func NewPublisher(cfg config.CDNConfig, api CacheAPI) *Publisher {
	if api == nil {
		api = NoopCacheAPI{}
	}
	ttl := cfg.DefaultCacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	domain := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(cfg.Domain, "https://"), "http://"), "/")
	return &Publisher{domain: domain, api: api, defaultTTL: ttl}
}

// Publish returns the playback URL for outputKey at quality. It is a pure
// function of its inputs:
//
//	https://<domain>/<escaped key>?quality=<quality>
func (p *Publisher) Publish(outputKey, quality string) (string, error) {
	if strings.TrimSpace(outputKey) == "" {
		return "", ErrEmptyKey
	}
	if strings.TrimSpace(quality) == "" {
		return "", ErrEmptyQuality
	}
	return p.assetURL(outputKey) + "?" + url.Values{"quality": {quality}}.Encode(), nil
}

func (p *Publisher) assetURL(key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "https://" + p.domain + "/" + strings.Join(segments, "/")
}

// PurgeCache invalidates the given object keys at the edge. Failures are
// logged and counted, never returned: a failed purge only widens the
// staleness window.
func (p *Publisher) PurgeCache(ctx context.Context, keys []string) {
	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) != "" {
			urls = append(urls, p.assetURL(k))
		}
	}
	if len(urls) == 0 {
		return
	}
	if err := p.api.Purge(ctx, urls); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("paths", len(urls)).Msg("CDN cache purge failed")
	}
}

// ConfigureCaching sets the edge TTL for outputKey. seconds <= 0 selects
// the configured default. Best-effort like PurgeCache.
func (p *Publisher) ConfigureCaching(ctx context.Context, outputKey string, seconds int) {
	if strings.TrimSpace(outputKey) == "" {
		return
	}
	if seconds <= 0 {
		seconds = int(p.defaultTTL.Seconds())
	}
	if err := p.api.SetCacheTTL(ctx, p.assetURL(outputKey)+"*", seconds); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("output_key", outputKey).Msg("CDN cache rule update failed")
	}
}

// DefaultTTLSeconds is the TTL applied when callers pass none.
func (p *Publisher) DefaultTTLSeconds() int {
	return int(p.defaultTTL.Seconds())
}
