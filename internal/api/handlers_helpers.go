// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/models"
	"github.com/tomtom215/mediaforge/internal/validation"
)

// maxJSONBody bounds request bodies other than chunk uploads.
const maxJSONBody = 64 << 10

// sanitizeLogValue removes control characters so client input cannot
// forge log entries.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// respondJSON writes response with status. API responses are per-caller
// and never cached.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *models.APIResponse) {
	response.Metadata.Timestamp = time.Now().UTC()
	response.Metadata.RequestID = logging.RequestIDFromContext(r.Context())

	data, err := json.Marshal(response)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondOK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, r, status, &models.APIResponse{Status: "success", Data: data})
}

// respondAPIError writes an error envelope.
func respondAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError) {
	respondJSON(w, r, status, &models.APIResponse{Status: "error", Error: apiErr})
}

// respondFixRequest rejects a malformed request.
func respondFixRequest(w http.ResponseWriter, r *http.Request, code, message string) {
	respondAPIError(w, r, http.StatusBadRequest, &models.APIError{
		Code:    code,
		Message: message,
		Details: map[string]interface{}{"action": models.ActionFixRequest},
	})
}

// respondError maps a domain error to its status, code and client action.
// Internal errors are logged with detail and answered generically.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	m := mapError(err)
	message := err.Error()

	event := logging.Ctx(r.Context()).Warn()
	if m == internalError {
		event = logging.Ctx(r.Context()).Error()
		message = "Internal server error"
	}
	event.Str("code", m.code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")

	respondAPIError(w, r, m.status, &models.APIError{
		Code:    m.code,
		Message: message,
		Details: errorDetails(err, m.action),
	})
}

// decodeJSON reads a bounded JSON body into v and validates it. It writes
// the error response itself and reports whether the caller may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
			respondFixRequest(w, r, "BODY_TOO_LARGE", "Request body too large")
		case errors.Is(err, io.EOF):
			respondFixRequest(w, r, "INVALID_JSON", "Request body is empty")
		default:
			respondFixRequest(w, r, "INVALID_JSON", "Invalid request body: "+sanitizeLogValue(err.Error()))
		}
		return false
	}
	if apiErr := validateRequest(v); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr)
		return false
	}
	return true
}

// validateRequest validates a struct using go-playground/validator and
// converts failures to a VALIDATION_ERROR.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	details := apiErr.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	details["action"] = models.ActionFixRequest
	return &models.APIError{Code: apiErr.Code, Message: apiErr.Message, Details: details}
}
