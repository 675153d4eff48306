// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package models

import "time"

// APIResponse is the envelope of every JSON response.
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "CHUNK_SIZE_MISMATCH",
//	    "message": "chunk 2 must be 199999 bytes, got 200000",
//	    "details": {"action": "retry_chunk", "index": 2}
//	  },
//	  "metadata": {"timestamp": "2026-01-10T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is the structured error body.
//
// Details["action"] tells the client what to do next:
//
//	retry_chunk      resend the named chunk, the session is intact
//	session_invalid  stop using this session (expired, completed, not found)
//	fix_request      the request itself is malformed
//	retry_later      transient server-side problem
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Client actions carried in APIError.Details["action"].
const (
	ActionRetryChunk     = "retry_chunk"
	ActionSessionInvalid = "session_invalid"
	ActionFixRequest     = "fix_request"
	ActionRetryLater     = "retry_later"
)
