// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/models"
)

// Authentication modes.
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// CreatorHeader carries the caller in header mode.
const CreatorHeader = "X-Creator-ID"

type contextKey string

const creatorContextKey contextKey = "creator_id"

// ContextWithCreator returns ctx carrying creatorID.
func ContextWithCreator(ctx context.Context, creatorID string) context.Context {
	return context.WithValue(ctx, creatorContextKey, creatorID)
}

// CreatorFromContext returns the authenticated creator ID.
func CreatorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(creatorContextKey).(string)
	return id, ok && id != ""
}

// Middleware resolves the caller of every request.
type Middleware struct {
	jwtManager *JWTManager
	authMode   string
}

// NewMiddleware creates the identity middleware. jwtManager may be nil in
// header mode.
func NewMiddleware(jwtManager *JWTManager, authMode string) *Middleware {
	if authMode == "" {
		authMode = AuthModeJWT
	}
	return &Middleware{jwtManager: jwtManager, authMode: authMode}
}

// Authenticate rejects requests without a resolvable creator.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creatorID, reason := m.resolve(r)
		if reason != "" {
			logging.Ctx(r.Context()).Debug().Str("reason", reason).Msg("Request not authenticated")
			unauthorized(w, reason)
			return
		}
		ctx := ContextWithCreator(r.Context(), creatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve returns the creator ID or a client-facing rejection reason.
func (m *Middleware) resolve(r *http.Request) (string, string) {
	if m.authMode == AuthModeHeader {
		id := strings.TrimSpace(r.Header.Get(CreatorHeader))
		if id == "" {
			return "", "missing " + CreatorHeader + " header"
		}
		return id, ""
	}

	token, reason := extractBearerToken(r)
	if reason != "" {
		return "", reason
	}
	if m.jwtManager == nil {
		return "", "token authentication is not configured"
	}
	claims, err := m.jwtManager.ValidateToken(token)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Token validation failed")
		return "", "invalid token"
	}
	return claims.Subject, ""
}

// extractBearerToken reads the Authorization header, falling back to the
// access_token query parameter for websocket upgrades, which cannot set
// headers from browsers.
func extractBearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, ""
		}
		return "", "missing token"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", "invalid authorization header"
	}
	return strings.TrimSpace(parts[1]), ""
}

func unauthorized(w http.ResponseWriter, message string) {
	body, _ := json.Marshal(&models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error: &models.APIError{
			Code:    "UNAUTHORIZED",
			Message: "Unauthorized: " + message,
			Details: map[string]interface{}{"action": models.ActionFixRequest},
		},
	})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mediaforge"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(body)
}
