// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package models

import "time"

// CreateUploadRequest is the body of POST /api/v1/uploads.
// ChunkSize 0 selects the server default.
type CreateUploadRequest struct {
	Filename    string `json:"filename" validate:"required,filename"`
	ContentType string `json:"content_type" validate:"required,mediatype"`
	TotalSize   int64  `json:"total_size" validate:"gt=0"`
	ChunkSize   int64  `json:"chunk_size" validate:"gte=0"`
}

// UploadSessionResponse describes an upload session to its creator.
type UploadSessionResponse struct {
	SessionID      string     `json:"session_id"`
	Filename       string     `json:"filename"`
	ContentType    string     `json:"content_type"`
	Status         string     `json:"status"`
	TotalSize      int64      `json:"total_size"`
	ChunkSize      int64      `json:"chunk_size"`
	TotalChunks    int        `json:"total_chunks"`
	ReceivedChunks int        `json:"received_chunks"`
	MissingChunks  []int      `json:"missing_chunks"`
	StorageKey     string     `json:"storage_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ChunkResponse is returned for every accepted or duplicate chunk.
type ChunkResponse struct {
	SessionID      string `json:"session_id"`
	Index          int    `json:"index"`
	Result         string `json:"result"` // accepted or duplicate
	ReceivedChunks int    `json:"received_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	Completed      bool   `json:"completed"`
	StorageKey     string `json:"storage_key,omitempty"`
}

// FinalizeResponse is returned by POST /api/v1/uploads/{id}/finalize.
type FinalizeResponse struct {
	SessionID  string `json:"session_id"`
	StorageKey string `json:"storage_key"`
}
