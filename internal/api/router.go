// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/middleware"
)

// Router assembles the HTTP routes.
type Router struct {
	handler       *Handler
	middleware    *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router for handler.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, chiMiddleware *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		middleware:    authMiddleware,
		chiMiddleware: chiMiddleware,
	}
}

// Setup returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(router.middleware.Authenticate)

		r.Route("/uploads", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimit())
				r.Post("/", router.handler.CreateUpload)
				r.Get("/", router.handler.ListUploads)
				r.Get("/{sessionID}", router.handler.GetUpload)
				r.Delete("/{sessionID}", router.handler.AbortUpload)
				r.Post("/{sessionID}/finalize", router.handler.FinalizeUpload)
			})
			r.With(router.chiMiddleware.ChunkRateLimit()).
				Put("/{sessionID}/chunks/{index}", router.handler.PutChunk)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.Route("/transcoding", func(r chi.Router) {
				r.Get("/", router.handler.ListJobs)
				r.Get("/{jobID}/status", router.handler.JobStatus)
				r.Get("/{jobID}/logs", router.handler.JobLogs)
				r.Post("/{jobID}/cancel", router.handler.CancelJob)
				r.Post("/{jobID}/retry", router.handler.RetryJob)
			})

			r.Get("/renditions", router.handler.ListRenditions)
			r.Get("/quality/profiles", router.handler.QualityProfiles)
			r.Get("/quality/recommendations", router.handler.QualityRecommendations)
			r.Get("/ws", router.handler.WebSocket)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondAPIError(w, req, http.StatusNotFound, notFoundError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondAPIError(w, req, http.StatusMethodNotAllowed, methodNotAllowedError())
	})

	return r
}
