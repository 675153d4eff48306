// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"net/http"
	"testing"

	"github.com/tomtom215/mediaforge/internal/models"
)

func TestQualityProfiles(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/quality/profiles", "alice", nil)
	var got []models.QualityProfileResponse
	decodeData(t, rec, &got)
	if len(got) != 4 || got[0].Name != "720p" || got[0].BitrateKbps != 2800 {
		t.Errorf("profiles = %+v", got)
	}
}

func TestQualityRecommendations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query    string
		profile  string
		fallback bool
	}{
		{"?tier=wifi", "720p", false},
		{"?tier=4G", "480p", false},
		{"?tier=2g", "240p", false},
		{"?tier=satellite", "240p", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil)
			rec := env.do(t, http.MethodGet, "/api/v1/quality/recommendations"+tt.query, "alice", nil)
			var got models.RecommendationResponse
			decodeData(t, rec, &got)
			if got.Profile.Name != tt.profile || got.Fallback != tt.fallback {
				t.Errorf("recommendation = %+v, want %s fallback=%v", got, tt.profile, tt.fallback)
			}
		})
	}
}

func TestQualityRecommendationsMap(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/quality/recommendations", "alice", nil)
	var got map[string]string
	decodeData(t, rec, &got)
	if got["wifi"] != "720p" || got["3g"] != "360p" || len(got) != 4 {
		t.Errorf("tier map = %v", got)
	}
}

func TestQualityRecommendationsBlankTier(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/quality/recommendations?tier=", "alice", nil)
	expectError(t, rec, http.StatusBadRequest, "INVALID_TIER", models.ActionFixRequest)
}
