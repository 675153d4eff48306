// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediaforge/config.yaml",
	"/etc/mediaforge/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultAllowedTypes is the upload MIME allow-list.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"video/mp4",
	"video/webm",
	"video/quicktime",
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			AuthMode:           "jwt",
			CORSOrigins:        []string{"*"},
			RateLimitReqs:      120,
			RateLimitWindow:    time.Minute,
			ChunkRateLimitReqs: 1200,
		},
		Upload: UploadConfig{
			MaxChunkSize:     16 << 20, // 16 MiB
			MaxTotalSize:     10 << 30, // 10 GiB
			DefaultChunkSize: 5 << 20,
			SessionTTL:       24 * time.Hour,
			SweepInterval:    5 * time.Minute,
			AllowedTypes:     append([]string(nil), DefaultAllowedTypes...),
		},
		ChunkStore: ChunkStoreConfig{
			Path:           "/data/chunks",
			SyncWrites:     true,
			EntryTTL:       72 * time.Hour,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Storage: StorageConfig{
			Type:  "local",
			Local: LocalStorageConfig{BasePath: "/data/objects"},
			S3:    S3StorageConfig{Region: "us-east-1"},
			Azure: AzureStorageConfig{Container: "media"},
		},
		Database: DatabaseConfig{
			Path:      "/data/mediaforge.duckdb",
			MaxMemory: "1GB",
		},
		Transcode: TranscodeConfig{
			Workers:      2,
			JobTimeout:   2 * time.Hour,
			PollInterval: 2 * time.Second,
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			TempDir:      os.TempDir(),
		},
		Quality: QualityConfig{
			Tiers: map[string]string{
				"wifi": "720p",
				"4g":   "480p",
				"3g":   "360p",
				"2g":   "240p",
			},
		},
		CDN: CDNConfig{
			APIBaseURL:        "https://api.cloudflare.com/client/v4",
			DefaultCacheTTL:   7 * 24 * time.Hour,
			RequestTimeout:    10 * time.Second,
			RequestsPerSecond: 4,
			Burst:             8,
		},
		Events: EventsConfig{
			Transport:            "memory",
			NATSURL:              "nats://127.0.0.1:4222",
			EmbeddedServer:       false,
			StoreDir:             "/data/nats",
			MaxStore:             1 << 30,
			DurableName:          "mediaforge",
			QueueGroup:           "mediaforge-workers",
			RetryCount:           5,
			RetryInitialInterval: 500 * time.Millisecond,
			RetryMaxInterval:     30 * time.Second,
			PoisonTopic:          "mediaforge.poison",
			CloseTimeout:         30 * time.Second,
			BreakerMaxFailures:   5,
			BreakerTimeout:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration in three layers (later wins):
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. mapped environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as strings from
// the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"upload.allowed_types",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			continue
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	// Server
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",

	// Security
	"auth_mode":             "security.auth_mode",
	"jwt_secret":            "security.jwt_secret",
	"jwt_issuer":            "security.jwt_issuer",
	"cors_origins":          "security.cors_origins",
	"rate_limit_requests":   "security.rate_limit_reqs",
	"rate_limit_window":     "security.rate_limit_window",
	"disable_rate_limit":    "security.rate_limit_disabled",
	"chunk_rate_limit_reqs": "security.chunk_rate_limit_reqs",

	// Upload
	"upload_max_chunk_size":     "upload.max_chunk_size",
	"upload_max_total_size":     "upload.max_total_size",
	"upload_default_chunk_size": "upload.default_chunk_size",
	"upload_session_ttl":        "upload.session_ttl",
	"upload_sweep_interval":     "upload.sweep_interval",
	"upload_allowed_types":      "upload.allowed_types",

	// Chunk store
	"badger_path":             "chunkstore.path",
	"badger_in_memory":        "chunkstore.in_memory",
	"badger_sync_writes":      "chunkstore.sync_writes",
	"chunk_ttl":               "chunkstore.entry_ttl",
	"badger_gc_interval":      "chunkstore.gc_interval",
	"badger_gc_discard_ratio": "chunkstore.gc_discard_ratio",

	// Object storage
	"storage_type":          "storage.type",
	"storage_local_path":    "storage.local.base_path",
	"s3_bucket":             "storage.s3.bucket",
	"s3_region":             "storage.s3.region",
	"s3_endpoint":           "storage.s3.endpoint",
	"s3_access_key_id":      "storage.s3.access_key_id",
	"s3_secret_access_key":  "storage.s3.secret_access_key",
	"s3_use_path_style":     "storage.s3.use_path_style",
	"azure_storage_conn":    "storage.azure.connection_string",
	"azure_storage_bucket":  "storage.azure.container",
	"azure_blob_container":  "storage.azure.container",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Transcoding
	"transcode_workers":       "transcode.workers",
	"transcode_job_timeout":   "transcode.job_timeout",
	"transcode_poll_interval": "transcode.poll_interval",
	"ffmpeg_path":             "transcode.ffmpeg_path",
	"ffprobe_path":            "transcode.ffprobe_path",
	"transcode_temp_dir":      "transcode.temp_dir",

	// CDN
	"cdn_domain":              "cdn.domain",
	"cdn_zone_id":             "cdn.zone_id",
	"cdn_api_token":           "cdn.api_token",
	"cdn_api_base_url":        "cdn.api_base_url",
	"cdn_default_cache_ttl":   "cdn.default_cache_ttl",
	"cdn_request_timeout":     "cdn.request_timeout",
	"cdn_requests_per_second": "cdn.requests_per_second",
	"cdn_burst":               "cdn.burst",

	// Events
	"events_transport":            "events.transport",
	"nats_url":                    "events.nats_url",
	"nats_embedded":               "events.embedded_server",
	"nats_store_dir":              "events.store_dir",
	"nats_max_store":              "events.max_store",
	"nats_durable_name":           "events.durable_name",
	"nats_queue_group":            "events.queue_group",
	"events_retry_count":          "events.retry_count",
	"events_retry_interval":       "events.retry_initial_interval",
	"events_retry_max_interval":   "events.retry_max_interval",
	"events_poison_topic":         "events.poison_topic",
	"events_close_timeout":        "events.close_timeout",
	"events_breaker_max_failures": "events.breaker_max_failures",
	"events_breaker_timeout":      "events.breaker_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped names return "" so koanf skips them.
//
//	S3_BUCKET          -> storage.s3.bucket
//	UPLOAD_SESSION_TTL -> upload.session_ttl
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
