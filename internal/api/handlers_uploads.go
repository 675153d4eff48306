// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/upload"
)

// creatorID returns the authenticated caller. Routes are mounted behind
// auth.Middleware, so a missing creator is a wiring bug.
func creatorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.CreatorFromContext(r.Context())
	if !ok {
		respondAPIError(w, r, http.StatusUnauthorized, &models.APIError{
			Code:    "UNAUTHORIZED",
			Message: "Unauthorized: no creator identity",
			Details: map[string]interface{}{"action": models.ActionFixRequest},
		})
	}
	return id, ok
}

func sessionResponse(s *upload.Session) models.UploadSessionResponse {
	missing := s.MissingChunks()
	if missing == nil {
		missing = []int{}
	}
	return models.UploadSessionResponse{
		SessionID:      s.ID,
		Filename:       s.Filename,
		ContentType:    s.ContentType,
		Status:         string(s.Status),
		TotalSize:      s.TotalSize,
		ChunkSize:      s.ChunkSize,
		TotalChunks:    s.TotalChunks,
		ReceivedChunks: len(s.ReceivedChunks),
		MissingChunks:  missing,
		StorageKey:     s.StorageKey,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
		CompletedAt:    s.CompletedAt,
	}
}

// CreateUpload handles POST /api/v1/uploads.
func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	creator, ok := creatorID(w, r)
	if !ok {
		return
	}
	var req models.CreateUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.uploads.Create(r.Context(), upload.CreateRequest{
		CreatorID:   creator,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		TotalSize:   req.TotalSize,
		ChunkSize:   req.ChunkSize,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/uploads/"+s.ID)
	respondOK(w, r, http.StatusCreated, sessionResponse(s))
}

// ListUploads handles GET /api/v1/uploads.
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	creator, ok := creatorID(w, r)
	if !ok {
		return
	}
	sessions, err := h.uploads.List(r.Context(), creator)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]models.UploadSessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = sessionResponse(s)
	}
	respondOK(w, r, http.StatusOK, out)
}

// GetUpload handles GET /api/v1/uploads/{sessionID}.
func (h *Handler) GetUpload(w http.ResponseWriter, r *http.Request) {
	creator, ok := creatorID(w, r)
	if !ok {
		return
	}
	s, err := h.uploads.Get(r.Context(), creator, chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, sessionResponse(s))
}

// PutChunk handles PUT /api/v1/uploads/{sessionID}/chunks/{index}. The
// body is the raw chunk. The request that completes the upload also
// finalizes it and returns the storage key.
func (h *Handler) PutChunk(w http.ResponseWriter, r *http.Request) {
	creator, ok := creatorID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondFixRequest(w, r, "INVALID_CHUNK_INDEX", "Chunk index must be an integer")
		return
	}

	limit := h.config.Upload.MaxChunkSize
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		respondAPIError(w, r, http.StatusBadRequest, &models.APIError{
			Code:    "CHUNK_READ_FAILED",
			Message: "Failed to read chunk body",
			Details: map[string]interface{}{"action": models.ActionRetryChunk, "index": index},
		})
		return
	}
	if int64(len(data)) > limit {
		respondAPIError(w, r, http.StatusRequestEntityTooLarge, &models.APIError{
			Code:    "CHUNK_TOO_LARGE",
			Message: "Chunk exceeds the maximum chunk size of " + strconv.FormatInt(limit, 10) + " bytes",
			Details: map[string]interface{}{"action": models.ActionFixRequest, "index": index},
		})
		return
	}

	res, err := h.uploads.AcceptChunk(r.Context(), creator, chi.URLParam(r, "sessionID"), index, data)
	if err != nil {
		respondChunkError(w, r, err, index)
		return
	}
	respondOK(w, r, http.StatusOK, models.ChunkResponse{
		SessionID:      res.SessionID,
		Index:          res.Index,
		Result:         string(res.Outcome),
		ReceivedChunks: res.ReceivedChunks,
		TotalChunks:    res.TotalChunks,
		Completed:      res.Completed,
		StorageKey:     res.StorageKey,
	})
}

// respondChunkError is respondError with the chunk index in the details,
// so a client uploading in parallel knows which request to repeat.
func respondChunkError(w http.ResponseWriter, r *http.Request, err error, index int) {
	m := mapError(err)
	if m == internalError {
		respondError(w, r, err)
		return
	}
	details := errorDetails(err, m.action)
	details["index"] = index
	respondAPIError(w, r, m.status, &models.APIError{Code: m.code, Message: err.Error(), Details: details})
}

// FinalizeUpload handles POST /api/v1/uploads/{sessionID}/finalize.
func (h *Handler) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	creator, ok := creatorID(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	key, err := h.uploads.Finalize(r.Context(), creator, sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, models.FinalizeResponse{SessionID: sessionID, StorageKey: key})
}

// AbortUpload handles DELETE /api/v1/uploads/{sessionID}.
func (h *Handler) AbortUpload(w http.ResponseWriter, r *http.Request) {
	creator, ok := creatorID(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.uploads.Abort(r.Context(), creator, sessionID); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     string(upload.StatusExpired),
	})
}
