// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/mediaforge/internal/chunkstore"
	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/quality"
	"github.com/tomtom215/mediaforge/internal/transcode"
	"github.com/tomtom215/mediaforge/internal/upload"
)

// errorMapping is the client-facing shape of a domain error.
type errorMapping struct {
	status int
	code   string
	action string
}

// Checked in order; the first errors.Is match wins.
var errorMappings = []struct {
	err error
	errorMapping
}{
	// Validation
	{upload.ErrInvalidUploadRequest, errorMapping{http.StatusBadRequest, "INVALID_UPLOAD_REQUEST", models.ActionFixRequest}},
	{upload.ErrUnsupportedMediaType, errorMapping{http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", models.ActionFixRequest}},
	{upload.ErrChunkIndexOutOfRange, errorMapping{http.StatusBadRequest, "CHUNK_INDEX_OUT_OF_RANGE", models.ActionFixRequest}},
	{upload.ErrChunkSizeMismatch, errorMapping{http.StatusBadRequest, "CHUNK_SIZE_MISMATCH", models.ActionRetryChunk}},
	{chunkstore.ErrChunkTooLarge, errorMapping{http.StatusRequestEntityTooLarge, "CHUNK_TOO_LARGE", models.ActionFixRequest}},
	{quality.ErrEmptyTier, errorMapping{http.StatusBadRequest, "INVALID_TIER", models.ActionFixRequest}},
	{transcode.ErrInvalidSource, errorMapping{http.StatusBadRequest, "INVALID_SOURCE", models.ActionFixRequest}},

	// State
	{upload.ErrSessionNotFound, errorMapping{http.StatusNotFound, "SESSION_NOT_FOUND", models.ActionSessionInvalid}},
	{upload.ErrSessionExpired, errorMapping{http.StatusGone, "SESSION_EXPIRED", models.ActionSessionInvalid}},
	{upload.ErrSessionAlreadyCompleted, errorMapping{http.StatusConflict, "SESSION_COMPLETED", models.ActionSessionInvalid}},
	{upload.ErrIncompleteUpload, errorMapping{http.StatusConflict, "UPLOAD_INCOMPLETE", models.ActionRetryChunk}},
	{upload.ErrFinalizeInProgress, errorMapping{http.StatusConflict, "FINALIZE_IN_PROGRESS", models.ActionRetryLater}},
	{transcode.ErrJobNotFound, errorMapping{http.StatusNotFound, "JOB_NOT_FOUND", models.ActionFixRequest}},
	{transcode.ErrRenditionNotFound, errorMapping{http.StatusNotFound, "RENDITION_NOT_FOUND", models.ActionFixRequest}},
	{transcode.ErrInvalidJobState, errorMapping{http.StatusConflict, "INVALID_JOB_STATE", models.ActionFixRequest}},

	// Integrity
	{upload.ErrChunkConflict, errorMapping{http.StatusConflict, "CHUNK_CONFLICT", models.ActionFixRequest}},
	{upload.ErrChunkCorrupted, errorMapping{http.StatusUnprocessableEntity, "CHUNK_CORRUPTED", models.ActionRetryChunk}},
	{upload.ErrChunkNotFound, errorMapping{http.StatusUnprocessableEntity, "CHUNK_MISSING", models.ActionRetryChunk}},

	// Client went away or took too long
	{context.DeadlineExceeded, errorMapping{http.StatusServiceUnavailable, "TIMEOUT", models.ActionRetryLater}},
	{context.Canceled, errorMapping{499, "REQUEST_CANCELLED", models.ActionRetryLater}},
}

var internalError = errorMapping{http.StatusInternalServerError, "INTERNAL_ERROR", models.ActionRetryLater}

// mapError classifies err. Unknown errors are internal and retryable.
func mapError(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.errorMapping
		}
	}
	return internalError
}

// errorDetails adds what the client needs to act on err: the chunk
// indices to resend after an integrity failure.
func errorDetails(err error, action string) map[string]interface{} {
	details := map[string]interface{}{"action": action}
	var ierr *upload.IntegrityError
	if errors.As(err, &ierr) {
		details["indices"] = ierr.Indices
	}
	return details
}

func notFoundError() *models.APIError {
	return &models.APIError{
		Code:    "NOT_FOUND",
		Message: "Route not found",
		Details: map[string]interface{}{"action": models.ActionFixRequest},
	}
}

func methodNotAllowedError() *models.APIError {
	return &models.APIError{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "Method not allowed",
		Details: map[string]interface{}{"action": models.ActionFixRequest},
	}
}
