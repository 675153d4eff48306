// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/mediaforge/internal/auth"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/models"
)

// ChiMiddlewareConfig holds the CORS and rate limit settings.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSExposedHeaders []string
	CORSMaxAge         int // seconds

	RateLimitRequests      int
	RateLimitWindow        time.Duration
	RateLimitDisabled      bool
	ChunkRateLimitRequests int
}

// ChiMiddlewareConfigFrom maps the security configuration section.
func ChiMiddlewareConfigFrom(sec config.SecurityConfig) *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins:     sec.CORSOrigins,
		CORSAllowedMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders:     []string{"Content-Type", "Authorization", auth.CreatorHeader, "X-Request-ID", "X-Correlation-ID"},
		CORSExposedHeaders:     []string{"Location", "X-Request-ID"},
		CORSMaxAge:             86400,
		RateLimitRequests:      sec.RateLimitReqs,
		RateLimitWindow:        sec.RateLimitWindow,
		RateLimitDisabled:      sec.RateLimitDisabled,
		ChunkRateLimitRequests: sec.ChunkRateLimitReqs,
	}
}

// ChiMiddleware provides the go-chi/cors and go-chi/httprate middleware.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware builds the middleware factory.
func NewChiMiddleware(cfg *ChiMiddlewareConfig) *ChiMiddleware {
	return &ChiMiddleware{
		config: cfg,
		cors: cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: cfg.CORSAllowedMethods,
			AllowedHeaders: cfg.CORSAllowedHeaders,
			ExposedHeaders: cfg.CORSExposedHeaders,
			MaxAge:         cfg.CORSMaxAge,
		}),
	}
}

// CORS must be global so preflight requests are answered before routing.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit limits the general API. It must run after authentication so
// the budget is per creator rather than per address.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.limit(m.config.RateLimitRequests)
}

// ChunkRateLimit limits chunk uploads, which arrive far more often than
// other calls.
func (m *ChiMiddleware) ChunkRateLimit() func(http.Handler) http.Handler {
	return m.limit(m.config.ChunkRateLimitRequests)
}

func (m *ChiMiddleware) limit(requests int) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled || requests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		requests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(keyByCreatorOrIP),
		httprate.WithLimitHandler(rateLimited),
	)
}

func keyByCreatorOrIP(r *http.Request) (string, error) {
	if creator, ok := auth.CreatorFromContext(r.Context()); ok {
		return "creator:" + creator, nil
	}
	return httprate.KeyByIP(r)
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondAPIError(w, r, http.StatusTooManyRequests, &models.APIError{
		Code:    "RATE_LIMITED",
		Message: "Too many requests",
		Details: map[string]interface{}{"action": models.ActionRetryLater},
	})
}

// APISecurityHeaders adds the response headers every API answer carries.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
