// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"net/http"

	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/quality"
)

func profileResponse(p quality.Profile) models.QualityProfileResponse {
	return models.QualityProfileResponse{
		Name:        p.Name,
		Width:       p.Width,
		Height:      p.Height,
		BitrateKbps: p.BitrateKbps,
		FrameRate:   p.FrameRate,
		Codec:       p.Codec,
	}
}

// QualityProfiles handles GET /api/v1/quality/profiles.
func (h *Handler) QualityProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.registry.List()
	out := make([]models.QualityProfileResponse, len(profiles))
	for i, p := range profiles {
		out[i] = profileResponse(p)
	}
	respondOK(w, r, http.StatusOK, out)
}

// QualityRecommendations handles GET /api/v1/quality/recommendations.
// Without ?tier= it returns the whole tier map; with it, one
// recommendation, falling back to the lowest profile for unknown tiers.
func (h *Handler) QualityRecommendations(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("tier") {
		respondOK(w, r, http.StatusOK, h.registry.Recommendations())
		return
	}

	rec, err := h.registry.Recommend(r.URL.Query().Get("tier"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, models.RecommendationResponse{
		Tier:     rec.Tier,
		Profile:  profileResponse(rec.Profile),
		Fallback: rec.Fallback,
	})
}
