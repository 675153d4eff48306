// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/models"
)

const readinessTimeout = 3 * time.Second

// HealthLive handles GET /api/v1/health/live. It reports the process is
// alive regardless of its dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /api/v1/health/ready. Every registered check
// must pass within readinessTimeout, otherwise the response is 503.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.healthChecks))
	for name := range h.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.healthChecks[name](ctx); err != nil {
			ready = false
			checks[name] = "unavailable"
			logging.Ctx(ctx).Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	respondJSON(w, r, code, &models.APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"checks":         checks,
			"ready_to_serve": ready,
			"uptime":         time.Since(h.startTime).Seconds(),
		},
	})
}
