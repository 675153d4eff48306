// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateSecurity,
		c.validateUpload,
		c.validateChunkStore,
		c.validateStorage,
		c.validateTranscode,
		c.validateQuality,
		c.validateCDN,
		c.validateEvents,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
		}
	case "header":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=header is not allowed in production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be jwt or header, got %q", c.Security.AuthMode)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 || c.Security.ChunkRateLimitReqs < 1 {
			return fmt.Errorf("rate limits must be positive (RATE_LIMIT_REQUESTS, CHUNK_RATE_LIMIT_REQS)")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

func (c *Config) validateUpload() error {
	u := c.Upload
	if u.MaxChunkSize <= 0 {
		return fmt.Errorf("UPLOAD_MAX_CHUNK_SIZE must be positive")
	}
	if u.MaxTotalSize <= 0 {
		return fmt.Errorf("UPLOAD_MAX_TOTAL_SIZE must be positive")
	}
	if u.DefaultChunkSize <= 0 || u.DefaultChunkSize > u.MaxChunkSize {
		return fmt.Errorf("UPLOAD_DEFAULT_CHUNK_SIZE must be in (0, %d]", u.MaxChunkSize)
	}
	if u.SessionTTL <= 0 {
		return fmt.Errorf("UPLOAD_SESSION_TTL must be positive")
	}
	if u.SweepInterval <= 0 {
		return fmt.Errorf("UPLOAD_SWEEP_INTERVAL must be positive")
	}
	if len(u.AllowedTypes) == 0 {
		return fmt.Errorf("UPLOAD_ALLOWED_TYPES must not be empty")
	}
	for _, t := range u.AllowedTypes {
		if !strings.HasPrefix(t, "image/") && !strings.HasPrefix(t, "video/") {
			return fmt.Errorf("UPLOAD_ALLOWED_TYPES entry %q is not an image or video type", t)
		}
	}
	return nil
}

func (c *Config) validateChunkStore() error {
	if !c.ChunkStore.InMemory && c.ChunkStore.Path == "" {
		return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY=true")
	}
	if c.ChunkStore.InMemory && c.Upload.MaxChunkSize > InMemoryMaxValueSize {
		return fmt.Errorf("UPLOAD_MAX_CHUNK_SIZE must be at most %d when BADGER_IN_MEMORY=true", InMemoryMaxValueSize)
	}
	if c.ChunkStore.GCDiscardRatio <= 0 || c.ChunkStore.GCDiscardRatio >= 1 {
		return fmt.Errorf("BADGER_GC_DISCARD_RATIO must be in (0, 1)")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Type {
	case "local":
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("STORAGE_LOCAL_PATH is required when STORAGE_TYPE=local")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_TYPE=s3")
		}
		if c.Storage.S3.Endpoint != "" {
			if err := validateHTTPURL(c.Storage.S3.Endpoint); err != nil {
				return fmt.Errorf("S3_ENDPOINT is invalid: %w", err)
			}
		}
	case "azure-blob":
		if c.Storage.Azure.ConnectionString == "" {
			return fmt.Errorf("AZURE_STORAGE_CONN is required when STORAGE_TYPE=azure-blob")
		}
		if c.Storage.Azure.Container == "" {
			return fmt.Errorf("AZURE_BLOB_CONTAINER is required when STORAGE_TYPE=azure-blob")
		}
	default:
		return fmt.Errorf("STORAGE_TYPE must be local, s3 or azure-blob, got %q", c.Storage.Type)
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.Workers < 1 {
		return fmt.Errorf("TRANSCODE_WORKERS must be at least 1")
	}
	if c.Transcode.JobTimeout <= 0 {
		return fmt.Errorf("TRANSCODE_JOB_TIMEOUT must be positive")
	}
	if c.Transcode.FFmpegPath == "" {
		return fmt.Errorf("FFMPEG_PATH must not be empty")
	}
	return nil
}

func (c *Config) validateQuality() error {
	seen := make(map[string]bool, len(c.Quality.Profiles))
	for _, p := range c.Quality.Profiles {
		if p.Name == "" {
			return fmt.Errorf("quality profile name must not be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate quality profile %q", p.Name)
		}
		seen[p.Name] = true
		if p.Width <= 0 || p.Height <= 0 || p.BitrateKbps <= 0 {
			return fmt.Errorf("quality profile %q needs positive width, height and bitrate", p.Name)
		}
	}
	if len(c.Quality.Profiles) > 0 {
		for tier, name := range c.Quality.Tiers {
			if !seen[name] {
				return fmt.Errorf("quality tier %q references unknown profile %q", tier, name)
			}
		}
	}
	return nil
}

func (c *Config) validateCDN() error {
	if c.CDN.Domain == "" {
		return fmt.Errorf("CDN_DOMAIN is required")
	}
	if strings.Contains(c.CDN.Domain, "/") {
		return fmt.Errorf("CDN_DOMAIN must be a bare host name, got %q", c.CDN.Domain)
	}
	if c.CDN.APIToken != "" {
		if c.CDN.ZoneID == "" {
			return fmt.Errorf("CDN_ZONE_ID is required when CDN_API_TOKEN is set")
		}
		if err := validateHTTPURL(c.CDN.APIBaseURL); err != nil {
			return fmt.Errorf("CDN_API_BASE_URL is invalid: %w", err)
		}
	}
	if c.CDN.RequestTimeout <= 0 {
		return fmt.Errorf("CDN_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Transport {
	case "memory":
	case "nats":
		if !c.Events.EmbeddedServer && c.Events.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when EVENTS_TRANSPORT=nats")
		}
	default:
		return fmt.Errorf("EVENTS_TRANSPORT must be memory or nats, got %q", c.Events.Transport)
	}
	if c.Events.RetryCount < 0 {
		return fmt.Errorf("EVENTS_RETRY_COUNT must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
