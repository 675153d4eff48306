// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

var (
	// ErrNotConnected is returned by Publish before Connect succeeded.
	ErrNotConnected = errors.New("event bus not connected")

	// ErrBusClosed is returned by Publish after Close.
	ErrBusClosed = errors.New("event bus closed")

	// ErrRouterNotRunning is reported by Router.Healthy while consumers
	// are not subscribed.
	ErrRouterNotRunning = errors.New("event router not running")
)

// Bus publishes domain events. Components depend on it through their own
// one-method publisher interfaces.
type Bus struct {
	transport Transport
	breaker   *gobreaker.CircuitBreaker[any]
	embedded  *EmbeddedServer

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewBus wraps transport with a circuit breaker that opens after
// maxFailures consecutive publish errors and probes again after timeout.
func NewBus(transport Transport, maxFailures uint32, timeout time.Duration) *Bus {
	if maxFailures == 0 {
		maxFailures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	name := "events-publish"
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
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
	return &Bus{transport: transport, breaker: cb}
}

// Open builds the transport selected by cfg and returns an unconnected
// bus. With events.embedded_server the bus owns a nats-server that is
// stopped by Close.
func Open(cfg config.EventsConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	switch cfg.Transport {
	case "", "memory":
		return NewBus(NewMemoryTransport(logger), cfg.BreakerMaxFailures, cfg.BreakerTimeout), nil
	case "nats":
		url := cfg.NATSURL
		var embedded *EmbeddedServer
		if cfg.EmbeddedServer {
			var err error
			embedded, err = StartEmbeddedServer(cfg.StoreDir, cfg.MaxStore)
			if err != nil {
				return nil, err
			}
			url = embedded.ClientURL()
		}
		t, err := NewNATSTransport(cfg, url, logger)
		if err != nil {
			if embedded != nil {
				embedded.Shutdown()
			}
			return nil, err
		}
		bus := NewBus(t, cfg.BreakerMaxFailures, cfg.BreakerTimeout)
		bus.embedded = embedded
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported events transport: %s", cfg.Transport)
	}
}

// Transport exposes the transport for router wiring.
func (b *Bus) Transport() Transport {
	return b.transport
}

// Connect prepares the transport. It must succeed before the first Publish.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if b.connected {
		return nil
	}
	if err := b.transport.Prepare(ctx); err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	b.connected = true
	return nil
}

// Connected reports whether Connect succeeded and Close was not called.
func (b *Bus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && !b.closed
}

// Publish encodes payload and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	connected, closed := b.connected, b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}
	if !connected {
		return ErrNotConnected
	}

	msg, err := NewMessage(ctx, topic, payload)
	if err != nil {
		return err
	}
	_, err = b.breaker.Execute(func() (any, error) {
		return nil, b.transport.Publisher().Publish(topic, msg)
	})
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close stops publishing and releases the transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.transport.Close()
	if b.embedded != nil {
		b.embedded.Shutdown()
	}
	return err
}

func recordHandled(topic string, err error) {
	metrics.RecordEventHandled(topic, err)
}
