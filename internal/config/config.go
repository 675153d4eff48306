// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package config

import "time"

// Config is the complete application configuration.
//
// Values are layered by LoadWithKoanf: defaults, then an optional YAML
// file, then mapped environment variables.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Upload     UploadConfig     `koanf:"upload"`
	ChunkStore ChunkStoreConfig `koanf:"chunkstore"`
	Storage    StorageConfig    `koanf:"storage"`
	Database   DatabaseConfig   `koanf:"database"`
	Transcode  TranscodeConfig  `koanf:"transcode"`
	Quality    QualityConfig    `koanf:"quality"`
	CDN        CDNConfig        `koanf:"cdn"`
	Events     EventsConfig     `koanf:"events"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development or production
}

// SecurityConfig controls caller identity, CORS and rate limiting.
type SecurityConfig struct {
	// AuthMode is "jwt" (HS256 bearer tokens, sub = creator ID) or
	// "header" (trust X-Creator-ID; development only).
	AuthMode  string `koanf:"auth_mode"`
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// ChunkRateLimitReqs is a separate, higher budget for chunk PUTs.
	ChunkRateLimitReqs int `koanf:"chunk_rate_limit_reqs"`
}

// UploadConfig controls upload session limits and expiry.
type UploadConfig struct {
	MaxChunkSize     int64         `koanf:"max_chunk_size"`
	MaxTotalSize     int64         `koanf:"max_total_size"`
	DefaultChunkSize int64         `koanf:"default_chunk_size"`
	SessionTTL       time.Duration `koanf:"session_ttl"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	AllowedTypes     []string      `koanf:"allowed_types"`
}

// InMemoryMaxValueSize is the largest value BadgerDB accepts in in-memory
// mode, where every value must fit inline in the LSM tree.
const InMemoryMaxValueSize = 1 << 20

// ChunkStoreConfig configures the BadgerDB instance that holds chunk bytes
// and upload session records.
type ChunkStoreConfig struct {
	Path           string        `koanf:"path"`
	InMemory       bool          `koanf:"in_memory"`
	SyncWrites     bool          `koanf:"sync_writes"`
	EntryTTL       time.Duration `koanf:"entry_ttl"`
	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`
}

// StorageConfig selects the durable object storage backend.
type StorageConfig struct {
	Type  string             `koanf:"type"` // local, s3, azure-blob
	Local LocalStorageConfig `koanf:"local"`
	S3    S3StorageConfig    `koanf:"s3"`
	Azure AzureStorageConfig `koanf:"azure"`
}

// LocalStorageConfig stores objects beneath BasePath.
type LocalStorageConfig struct {
	BasePath string `koanf:"base_path"`
}

// S3StorageConfig configures an S3 compatible bucket.
type S3StorageConfig struct {
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"` // MinIO and other S3 compatible endpoints
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// AzureStorageConfig configures an Azure Blob container.
type AzureStorageConfig struct {
	ConnectionString string `koanf:"connection_string"`
	Container        string `koanf:"container"`
}

// DatabaseConfig configures the DuckDB job database.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// TranscodeConfig configures the worker pool and ffmpeg runner.
type TranscodeConfig struct {
	Workers      int           `koanf:"workers"`
	JobTimeout   time.Duration `koanf:"job_timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
	FFmpegPath   string        `koanf:"ffmpeg_path"`
	FFprobePath  string        `koanf:"ffprobe_path"`
	TempDir      string        `koanf:"temp_dir"`
}

// QualityConfig holds the quality profile catalog and the bandwidth tier
// map. An empty Profiles list selects the built-in 720p/480p/360p/240p set.
type QualityConfig struct {
	Profiles []QualityProfileConfig `koanf:"profiles"`
	Tiers    map[string]string      `koanf:"tiers"`
}

// QualityProfileConfig describes one rendition target.
type QualityProfileConfig struct {
	Name        string `koanf:"name"`
	Width       int    `koanf:"width"`
	Height      int    `koanf:"height"`
	BitrateKbps int    `koanf:"bitrate_kbps"`
	FrameRate   int    `koanf:"frame_rate"`
	Codec       string `koanf:"codec"`
}

// CDNConfig configures playback URL derivation and the cache management API.
// Leaving APIToken empty disables cache purges and TTL rules.
type CDNConfig struct {
	Domain            string        `koanf:"domain"`
	ZoneID            string        `koanf:"zone_id"`
	APIToken          string        `koanf:"api_token"`
	APIBaseURL        string        `koanf:"api_base_url"`
	DefaultCacheTTL   time.Duration `koanf:"default_cache_ttl"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// EventsConfig configures the event bus transport and router.
type EventsConfig struct {
	Transport      string `koanf:"transport"` // memory or nats
	NATSURL        string `koanf:"nats_url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxStore       int64  `koanf:"max_store"`
	DurableName    string `koanf:"durable_name"`
	QueueGroup     string `koanf:"queue_group"`

	RetryCount           int           `koanf:"retry_count"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	PoisonTopic          string        `koanf:"poison_topic"`
	CloseTimeout         time.Duration `koanf:"close_timeout"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig tunes the suture restart policy.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
