// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/mediaforge/internal/config"
)

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"sources/a/b.mp4", "sources/a/b.mp4", false},
		{"sources//a/./b.mp4", "sources/a/b.mp4", false},
		{"", "", true},
		{"/etc/passwd", "", true},
		{"../escape", "", true},
		{"a/../../escape", "", true},
		{".", "", true},
		{"bad\x00key", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("CleanKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("CleanKey(%q) error should wrap ErrInvalidKey: %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("CleanKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	body := "not really a video"
	if err := s.Put(ctx, "sources/c1/s1/clip.mp4", strings.NewReader(body), int64(len(body)), "video/mp4"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	info, err := s.Stat(ctx, "sources/c1/s1/clip.mp4")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(body)) {
		t.Errorf("Size = %d, want %d", info.Size, len(body))
	}

	rc, err := s.Get(ctx, "sources/c1/s1/clip.mp4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != body {
		t.Errorf("Get = %q", got)
	}

	if err := s.Delete(ctx, "sources/c1/s1/clip.mp4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Stat(ctx, "sources/c1/s1/clip.mp4"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "sources/c1/s1/clip.mp4"); err != nil {
		t.Errorf("deleting a missing key should succeed: %v", err)
	}
}

func TestLocalStoreShortWriteLeavesNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = s.Put(context.Background(), "x/short.bin", strings.NewReader("abc"), 10, "")
	if err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := os.Stat(filepath.Join(dir, "x", "short.bin")); !os.IsNotExist(err) {
		t.Errorf("partial object must not be visible, stat err = %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "x"))
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLocalStoreGetMissing(t *testing.T) {
	t.Parallel()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := New(ctx, config.StorageConfig{Type: "local", Local: config.LocalStorageConfig{BasePath: t.TempDir()}})
	if err != nil {
		t.Fatalf("New(local): %v", err)
	}
	if s.Backend() != "local" {
		t.Errorf("Backend() = %q", s.Backend())
	}
	if Instrument(s) != s {
		t.Error("Instrument should not double wrap")
	}

	if _, err := New(ctx, config.StorageConfig{Type: "ftp"}); err == nil {
		t.Error("expected error for unsupported type")
	}
	if _, err := New(ctx, config.StorageConfig{Type: "s3"}); err == nil {
		t.Error("expected error for s3 without bucket")
	}
	if _, err := New(ctx, config.StorageConfig{Type: "azure-blob"}); err == nil {
		t.Error("expected error for azure without connection string")
	}
}
