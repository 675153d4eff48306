// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/mediaforge/internal/config"
)

// RouterConfig tunes consumer retries and the poison queue.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	PoisonQueueTopic     string
}

// RouterConfigFrom maps the events configuration section.
func RouterConfigFrom(cfg config.EventsConfig) RouterConfig {
	return RouterConfig{
		CloseTimeout:         cfg.CloseTimeout,
		RetryMaxRetries:      cfg.RetryCount,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetryMaxInterval:     cfg.RetryMaxInterval,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     cfg.PoisonTopic,
	}
}

// Router runs event consumers with middleware, outer to inner:
// PoisonQueue for messages that exhausted their retries, Retry with
// exponential backoff, then Recoverer.
type Router struct {
	router    *message.Router
	transport Transport
	logger    watermill.LoggerAdapter
	ran       atomic.Bool
}

// NewRouter creates a router consuming from bus's transport.
func NewRouter(cfg RouterConfig, bus *Bus, logger watermill.LoggerAdapter) (*Router, error) {
	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	if cfg.PoisonQueueTopic != "" {
		poison, err := middleware.PoisonQueue(bus.Transport().Publisher(), cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	// Innermost, so a panic becomes an error the retry sees.
	wmRouter.AddMiddleware(middleware.Recoverer)

	return &Router{router: wmRouter, transport: bus.Transport(), logger: logger}, nil
}

// AddConsumer subscribes handler to topic under a durable consumer name.
func (r *Router) AddConsumer(name, topic string, handler message.NoPublishHandlerFunc) error {
	sub, err := r.transport.Subscriber(name)
	if err != nil {
		return err
	}
	r.router.AddConsumerHandler(name, topic, sub, handler)
	return nil
}

// Running closes once every handler subscribed.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Healthy reports whether consumers are subscribed and processing.
func (r *Router) Healthy() error {
	if r.router.IsClosed() || !r.router.IsRunning() {
		return ErrRouterNotRunning
	}
	return nil
}

// Serve implements suture.Service. A Watermill router cannot be restarted
// after it stopped, so a second Serve asks the supervisor not to retry.
func (r *Router) Serve(ctx context.Context) error {
	if !r.ran.CompareAndSwap(false, true) {
		return suture.ErrDoNotRestart
	}
	if err := r.router.Run(ctx); err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return suture.ErrDoNotRestart
}

// Close stops consumers, waiting up to CloseTimeout for in-flight messages.
func (r *Router) Close() error {
	return r.router.Close()
}

func (r *Router) String() string {
	return "event-router"
}
