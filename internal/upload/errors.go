// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package upload

import (
	"errors"
	"fmt"

	"github.com/tomtom215/mediaforge/internal/chunkstore"
)

// Validation errors.
var (
	ErrInvalidUploadRequest = errors.New("invalid upload request")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")
	ErrChunkSizeMismatch    = errors.New("chunk size does not match expected size")
)

// State errors.
var (
	ErrSessionNotFound         = errors.New("upload session not found")
	ErrSessionExpired          = errors.New("upload session expired")
	ErrSessionAlreadyCompleted = errors.New("upload session already completed")
	ErrIncompleteUpload        = errors.New("upload is missing chunks")
	ErrFinalizeInProgress      = errors.New("upload session is being finalized")
)

// Integrity errors. ErrChunkNotFound and ErrChunkConflict are the chunk
// store's sentinels so errors.Is works across both packages.
var (
	ErrChunkCorrupted = errors.New("chunk data failed integrity check")
	ErrChunkNotFound  = chunkstore.ErrChunkNotFound
	ErrChunkConflict  = chunkstore.ErrChunkConflict
)

// IntegrityError reports which chunk indices failed verification during
// finalization. Those indices are removed from the session so the client
// can upload them again.
type IntegrityError struct {
	Err     error
	Indices []int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: chunks %v", e.Err, e.Indices)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
