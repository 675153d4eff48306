// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package objectstore is the durable home of finalized sources and
// encoded renditions.
//
// Three backends are available, selected by storage.type:
//
//	local       files beneath a base directory (development, single node)
//	s3          Amazon S3 or any S3 compatible endpoint such as MinIO
//	azure-blob  an Azure Blob Storage container
//
// Keys are slash separated relative paths, for example
// sources/<creator>/<session>/<file> and renditions/<source>/<profile>.mp4.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

var (
	// ErrObjectNotFound is returned when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for absolute or escaping keys.
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is durable object storage.
type Store interface {
	// Put writes size bytes from r under key, replacing any existing object.
	// A partially written object is never visible under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the object for reading; callers close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns object metadata or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Backend names the implementation for logs and metrics.
	Backend() string
}

// CleanKey validates key and returns it in canonical form.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}

// New builds the backend selected by cfg.Type, wrapped with metrics.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Type {
	case "local":
		s, err = NewLocalStore(cfg.Local.BasePath)
	case "s3":
		s, err = NewS3Store(ctx, cfg.S3)
	case "azure-blob":
		s, err = NewAzureStore(cfg.Azure)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(s), nil
}

// Instrument records latency and outcome of every call on s.
func Instrument(s Store) Store {
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{next: s}
}

type instrumented struct {
	next Store
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrObjectNotFound) {
		err = nil
	}
	metrics.RecordObjectStoreOp(i.next.Backend(), op, time.Since(start), err)
}

func (i *instrumented) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (err error) {
	defer func(start time.Time) { i.observe("put", start, err) }(time.Now())
	return i.next.Put(ctx, key, r, size, contentType)
}

func (i *instrumented) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	defer func(start time.Time) { i.observe("get", start, err) }(time.Now())
	return i.next.Get(ctx, key)
}

func (i *instrumented) Stat(ctx context.Context, key string) (info ObjectInfo, err error) {
	defer func(start time.Time) { i.observe("stat", start, err) }(time.Now())
	return i.next.Stat(ctx, key)
}

func (i *instrumented) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { i.observe("delete", start, err) }(time.Now())
	return i.next.Delete(ctx, key)
}

func (i *instrumented) Backend() string {
	return i.next.Backend()
}
