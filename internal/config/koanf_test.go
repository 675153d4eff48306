// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// validConfig returns defaults plus the settings that have no safe default.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testSecret
	cfg.CDN.Domain = "media.example.com"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if cfg.Upload.MaxChunkSize != 16<<20 {
		t.Errorf("Upload.MaxChunkSize = %d, want 16MiB", cfg.Upload.MaxChunkSize)
	}
	if cfg.Upload.SessionTTL != 24*time.Hour {
		t.Errorf("Upload.SessionTTL = %v, want 24h", cfg.Upload.SessionTTL)
	}
	if len(cfg.Upload.AllowedTypes) != 7 {
		t.Errorf("expected 7 allowed types, got %v", cfg.Upload.AllowedTypes)
	}
	if cfg.Quality.Tiers["wifi"] != "720p" || cfg.Quality.Tiers["2g"] != "240p" {
		t.Errorf("unexpected tier map %v", cfg.Quality.Tiers)
	}
	if cfg.Storage.Type != "local" {
		t.Errorf("Storage.Type = %q, want local", cfg.Storage.Type)
	}
	if cfg.Events.Transport != "memory" {
		t.Errorf("Events.Transport = %q, want memory", cfg.Events.Transport)
	}
}

func TestValidConfigPasses(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"header auth in production", func(c *Config) {
			c.Security.AuthMode = "header"
			c.Server.Environment = "production"
		}, "not allowed in production"},
		{"unknown auth mode", func(c *Config) { c.Security.AuthMode = "basic" }, "AUTH_MODE"},
		{"default chunk larger than max", func(c *Config) { c.Upload.DefaultChunkSize = c.Upload.MaxChunkSize + 1 }, "UPLOAD_DEFAULT_CHUNK_SIZE"},
		{"non media type", func(c *Config) { c.Upload.AllowedTypes = []string{"application/pdf"} }, "UPLOAD_ALLOWED_TYPES"},
		{"in-memory badger with large chunks", func(c *Config) {
			c.ChunkStore.InMemory = true
			c.Upload.MaxChunkSize = 16 << 20
		}, "BADGER_IN_MEMORY"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, "S3_BUCKET"},
		{"azure without conn", func(c *Config) { c.Storage.Type = "azure-blob" }, "AZURE_STORAGE_CONN"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }, "STORAGE_TYPE"},
		{"zero workers", func(c *Config) { c.Transcode.Workers = 0 }, "TRANSCODE_WORKERS"},
		{"duplicate profile", func(c *Config) {
			p := QualityProfileConfig{Name: "720p", Width: 1280, Height: 720, BitrateKbps: 2800}
			c.Quality.Profiles = []QualityProfileConfig{p, p}
		}, "duplicate"},
		{"tier to unknown profile", func(c *Config) {
			c.Quality.Profiles = []QualityProfileConfig{{Name: "1080p", Width: 1920, Height: 1080, BitrateKbps: 5000}}
		}, "unknown profile"},
		{"missing cdn domain", func(c *Config) { c.CDN.Domain = "" }, "CDN_DOMAIN"},
		{"cdn domain with path", func(c *Config) { c.CDN.Domain = "cdn.example.com/media" }, "bare host"},
		{"cdn token without zone", func(c *Config) { c.CDN.APIToken = "tok" }, "CDN_ZONE_ID"},
		{"unknown transport", func(c *Config) { c.Events.Transport = "kafka" }, "EVENTS_TRANSPORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryChunkStoreWithSmallChunks(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ChunkStore.InMemory = true
	cfg.Upload.MaxChunkSize = InMemoryMaxValueSize
	cfg.Upload.DefaultChunkSize = 512 << 10
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"S3_BUCKET":            "storage.s3.bucket",
		"UPLOAD_SESSION_TTL":   "upload.session_ttl",
		"CDN_DOMAIN":           "cdn.domain",
		"TRANSCODE_WORKERS":    "transcode.workers",
		"NATS_EMBEDDED":        "events.embedded_server",
		"HOME":                 "",
		"SOME_RANDOM_VARIABLE": "",
		"azure_blob_container": "storage.azure.container",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadWithKoanfFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
security:
  auth_mode: jwt
  jwt_secret: "` + testSecret + `"
cdn:
  domain: file.example.com
transcode:
  workers: 3
quality:
  profiles:
    - {name: 1080p, width: 1920, height: 1080, bitrate_kbps: 5000, frame_rate: 30, codec: h264}
    - {name: 540p, width: 960, height: 540, bitrate_kbps: 1800, frame_rate: 30, codec: h264}
  tiers:
    wifi: 1080p
    4g: 540p
    3g: 540p
    2g: 540p
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CDN_DOMAIN", "env.example.com")
	t.Setenv("UPLOAD_ALLOWED_TYPES", "video/mp4, image/png")
	t.Setenv("UPLOAD_SESSION_TTL", "2h")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() = %v", err)
	}

	if cfg.CDN.Domain != "env.example.com" {
		t.Errorf("env should override file, got %q", cfg.CDN.Domain)
	}
	if cfg.Transcode.Workers != 3 {
		t.Errorf("Transcode.Workers = %d, want 3", cfg.Transcode.Workers)
	}
	if len(cfg.Quality.Profiles) != 2 || cfg.Quality.Profiles[0].Name != "1080p" {
		t.Errorf("unexpected profiles %+v", cfg.Quality.Profiles)
	}
	if got := cfg.Upload.AllowedTypes; len(got) != 2 || got[1] != "image/png" {
		t.Errorf("AllowedTypes = %v", got)
	}
	if cfg.Upload.SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL = %v, want 2h", cfg.Upload.SessionTTL)
	}
	if cfg.Upload.MaxChunkSize != 16<<20 {
		t.Errorf("default should survive, got %d", cfg.Upload.MaxChunkSize)
	}
}

func TestLoadWithKoanfValidationFailure(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CDN_DOMAIN", "")

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected validation error without JWT_SECRET")
	}
}
