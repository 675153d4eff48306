// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package cdn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

const (
	defaultCloudflareBaseURL = "https://api.cloudflare.com/client/v4"

	// Cloudflare accepts at most 30 URLs per purge request.
	purgeBatchSize = 30
)

// APIError is a non-2xx answer from the Cloudflare API.
type APIError struct {
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("cloudflare api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("cloudflare api: status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

// Retryable reports whether the failure is on Cloudflare's side.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// CloudflareAPI implements CacheAPI against a Cloudflare zone. Calls are
// rate limited, bounded by a per-request timeout and pass through a circuit
// breaker that opens after repeated server-side failures.
type CloudflareAPI struct {
	baseURL    string
	zoneID     string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[any]
}

// NewCloudflareAPI creates a client for cfg.ZoneID authenticated by
// cfg.APIToken.
func NewCloudflareAPI(cfg config.CDNConfig) *CloudflareAPI {
	baseURL := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCloudflareBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	name := "cdn-api"
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors say nothing about Cloudflare's health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return &CloudflareAPI{
		baseURL:    baseURL,
		zoneID:     cfg.ZoneID,
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    cb,
	}
}

type purgeRequest struct {
	Files []string `json:"files"`
}

type pageRuleRequest struct {
	Targets  []pageRuleTarget `json:"targets"`
	Actions  []pageRuleAction `json:"actions"`
	Priority int              `json:"priority"`
	Status   string           `json:"status"`
}

type pageRuleTarget struct {
	Target     string             `json:"target"`
	Constraint pageRuleConstraint `json:"constraint"`
}

type pageRuleConstraint struct {
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type pageRuleAction struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

type apiEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Purge implements CacheAPI, batching URLs 30 per request.
func (c *CloudflareAPI) Purge(ctx context.Context, urls []string) error {
	for start := 0; start < len(urls); start += purgeBatchSize {
		end := start + purgeBatchSize
		if end > len(urls) {
			end = len(urls)
		}
		body := purgeRequest{Files: urls[start:end]}
		if err := c.call(ctx, "purge", "/zones/"+c.zoneID+"/purge_cache", body); err != nil {
			return err
		}
	}
	return nil
}

// SetCacheTTL implements CacheAPI with a page rule that caches everything
// under pattern for seconds.
func (c *CloudflareAPI) SetCacheTTL(ctx context.Context, pattern string, seconds int) error {
	body := pageRuleRequest{
		Targets: []pageRuleTarget{{
			Target:     "url",
			Constraint: pageRuleConstraint{Operator: "matches", Value: pattern},
		}},
		Actions: []pageRuleAction{
			{ID: "cache_level", Value: "cache_everything"},
			{ID: "edge_cache_ttl", Value: seconds},
		},
		Priority: 1,
		Status:   "active",
	}
	return c.call(ctx, "cache_ttl", "/zones/"+c.zoneID+"/pagerules", body)
}

func (c *CloudflareAPI) call(ctx context.Context, op, path string, body any) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.post(ctx, path, body)
	})
	metrics.RecordCDNRequest(op, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("cdn %s: %w", op, err)
	}
	return nil
}

func (c *CloudflareAPI) post(ctx context.Context, path string, body any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env apiEnvelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode/100 == 2 && (env.Success || len(raw) == 0) {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	for _, e := range env.Errors {
		apiErr.Messages = append(apiErr.Messages, fmt.Sprintf("%d %s", e.Code, e.Message))
	}
	return apiErr
}
