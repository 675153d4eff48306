// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"context"
	"strings"

	"github.com/tomtom215/mediaforge/internal/quality"
)

// ProgressFunc receives percent complete (0..100) as encoding advances.
type ProgressFunc func(percent int)

// LogFunc receives a line of encoder output.
type LogFunc func(level, message string)

// Task is one unit of work handed to a Runner.
type Task struct {
	JobID     string
	SourceKey   string
	ContentType string
	Profile     quality.Profile
	Attempt     int
	Log         LogFunc
}

func (t Task) logf(level, message string) {
	if t.Log != nil {
		t.Log(level, message)
	}
}

// Runner encodes a source into one rendition and returns the rendition's
// object key. Implementations must stop promptly when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, task Task, progress ProgressFunc) (string, error)
}

// Image renditions keep these web formats; other image types become JPEG.
var imageRenditionExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/avif": ".avif",
}

func baseMediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsImage reports whether contentType is a still image. The pipeline is
// chosen by the validated upload content type, never by file name.
func IsImage(contentType string) bool {
	return strings.HasPrefix(baseMediaType(contentType), "image/")
}

// RenditionKey is where a rendition of sourceKey at profile is stored:
// renditions/<source key>/<profile>.<ext>. Video renditions are MP4.
func RenditionKey(sourceKey, contentType, profile string) string {
	ext := ".mp4"
	if IsImage(contentType) {
		ext = ".jpg"
		if e, ok := imageRenditionExt[baseMediaType(contentType)]; ok {
			ext = e
		}
	}
	return "renditions/" + strings.TrimPrefix(sourceKey, "/") + "/" + profile + ext
}
