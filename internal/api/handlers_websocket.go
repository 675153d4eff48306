// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/upload"
	ws "github.com/tomtom215/mediaforge/internal/websocket"
)

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts requests without an Origin header, which
// come from non-browser upload clients that already authenticated, and
// browser requests whose origin is listed in the CORS origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.config == nil {
		return true
	}
	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// WebSocket handles GET /api/v1/ws. The connection receives job status
// events for the caller's own sources, optionally narrowed to one source
// with ?source=.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondAPIError(w, r, http.StatusServiceUnavailable, &models.APIError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "WebSocket service unavailable",
			Details: map[string]interface{}{"action": models.ActionRetryLater},
		})
		return
	}
	creator, ok := creatorID(w, r)
	if !ok {
		return
	}
	filter := ws.Filter{Prefix: upload.CreatorPrefix(creator)}
	if source := r.URL.Query().Get("source"); source != "" {
		q := sourceQuery{Source: source}
		if apiErr := validateRequest(&q); apiErr != nil {
			respondAPIError(w, r, http.StatusBadRequest, apiErr)
			return
		}
		filter.Source = source
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.wsHub, conn, filter)
	if err := h.wsHub.Join(r.Context(), client); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket hub unavailable")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "hub unavailable"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	client.Start()
}
