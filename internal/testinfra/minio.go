// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/mediaforge/internal/config"
)

const (
	DefaultMinIOImage  = "minio/minio:RELEASE.2025-04-22T22-12-26Z"
	DefaultMinIOPort   = "9000"
	DefaultMinIOBucket = "mediaforge-test"
	minioUser          = "mediaforge"
	minioPassword      = "mediaforge-secret"
)

// MinIOContainer is a running MinIO server.
type MinIOContainer struct {
	testcontainers.Container
	Endpoint string
	Bucket   string
}

// MinIOOption configures the MinIO container.
type MinIOOption func(*minioConfig)

type minioConfig struct {
	image        string
	bucket       string
	startTimeout time.Duration
}

// WithMinIOImage overrides the image.
func WithMinIOImage(image string) MinIOOption {
	return func(c *minioConfig) { c.image = image }
}

// WithBucket overrides the bucket created at startup.
func WithBucket(bucket string) MinIOOption {
	return func(c *minioConfig) { c.bucket = bucket }
}

// NewMinIOContainer starts MinIO and creates the bucket as a directory in
// its data dir, which MinIO treats as an existing bucket.
func NewMinIOContainer(ctx context.Context, opts ...MinIOOption) (*MinIOContainer, error) {
	cfg := &minioConfig{
		image:        DefaultMinIOImage,
		bucket:       DefaultMinIOBucket,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultMinIOPort + "/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioUser,
			"MINIO_ROOT_PASSWORD": minioPassword,
		},
		Entrypoint: []string{"sh", "-c"},
		Cmd:        []string{fmt.Sprintf("mkdir -p /data/%s && minio server /data", cfg.bucket)},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultMinIOPort+"/tcp"),
			wait.ForHTTP("/minio/health/ready").WithPort(DefaultMinIOPort+"/tcp"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio container: %w", err)
	}

	ep, err := endpoint(ctx, container, DefaultMinIOPort, "http")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("resolve minio endpoint: %w", err)
	}

	return &MinIOContainer{Container: container, Endpoint: ep, Bucket: cfg.bucket}, nil
}

// S3Config returns storage settings pointing at this container.
func (m *MinIOContainer) S3Config() config.S3StorageConfig {
	return config.S3StorageConfig{
		Bucket:          m.Bucket,
		Region:          "us-east-1",
		Endpoint:        m.Endpoint,
		AccessKeyID:     minioUser,
		SecretAccessKey: minioPassword,
		UsePathStyle:    true,
	}
}
