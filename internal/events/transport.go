// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/mediaforge/internal/config"
)

// Transport provides the Watermill publisher and per-consumer subscribers.
type Transport interface {
	Publisher() message.Publisher
	// Subscriber returns a subscriber for one named consumer. Consumers
	// with different names each receive every message.
	Subscriber(consumer string) (message.Subscriber, error)
	// Prepare makes the transport ready to publish.
	Prepare(ctx context.Context) error
	Close() error
}

// MemoryTransport is an in-process GoChannel. Messages are lost on restart.
// The channel is persistent so events published before the router
// subscribes are replayed to it; every message stays in memory for the
// life of the process.
type MemoryTransport struct {
	pubsub *gochannel.GoChannel
}

// NewMemoryTransport creates the in-process transport.
func NewMemoryTransport(logger watermill.LoggerAdapter) *MemoryTransport {
	return &MemoryTransport{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
			Persistent:          true,
		}, logger),
	}
}

func (t *MemoryTransport) Publisher() message.Publisher { return t.pubsub }

func (t *MemoryTransport) Subscriber(string) (message.Subscriber, error) { return t.pubsub, nil }

func (t *MemoryTransport) Prepare(context.Context) error { return nil }

func (t *MemoryTransport) Close() error { return t.pubsub.Close() }

// StreamName is the JetStream stream carrying every Mediaforge topic.
const StreamName = "MEDIAFORGE"

// StreamSubjects lists the subjects bound to StreamName.
var StreamSubjects = []string{"upload.>", "transcode.>", "mediaforge.>"}

// NATSTransport publishes to JetStream and binds subscribers to StreamName.
type NATSTransport struct {
	cfg       config.EventsConfig
	url       string
	logger    watermill.LoggerAdapter
	publisher *wmNats.Publisher
	subs      []*wmNats.Subscriber
}

// NewNATSTransport connects a publisher to url.
func NewNATSTransport(cfg config.EventsConfig, url string, logger watermill.LoggerAdapter) (*NATSTransport, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	return &NATSTransport{cfg: cfg, url: url, logger: logger, publisher: pub}, nil
}

func natsOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

func (t *NATSTransport) Publisher() message.Publisher { return t.publisher }

// Subscriber creates a durable JetStream consumer named
// <durable_name>-<consumer>, load balanced across replicas by queue group.
func (t *NATSTransport) Subscriber(consumer string) (message.Subscriber, error) {
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              t.url,
		QueueGroupPrefix: t.cfg.QueueGroup + "-" + consumer,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     t.cfg.CloseTimeout,
		NatsOptions:      natsOptions(t.logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(StreamName),
				natsgo.DeliverAll(),
				natsgo.MaxDeliver(t.cfg.RetryCount + 2),
			},
			DurablePrefix: t.cfg.DurableName + "-" + consumer,
		},
	}, t.logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS subscriber %s: %w", consumer, err)
	}
	t.subs = append(t.subs, sub)
	return sub, nil
}

// Prepare creates or updates StreamName.
func (t *NATSTransport) Prepare(ctx context.Context) error {
	nc, err := natsgo.Connect(t.url)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	return EnsureStream(ctx, js, t.cfg.MaxStore)
}

func (t *NATSTransport) Close() error {
	var firstErr error
	for _, s := range t.subs {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.publisher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// JetStreamManager is the subset of jetstream.JetStream used by EnsureStream.
type JetStreamManager interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// EnsureStream creates StreamName or updates its configuration.
func EnsureStream(ctx context.Context, js JetStreamManager, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = -1
	}
	cfg := jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   StreamSubjects,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		MaxBytes:   maxBytes,
		Duplicates: 2 * time.Minute,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	}

	_, err := js.Stream(ctx, StreamName)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", StreamName, err)
		}
		return nil
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", StreamName, err)
		}
		return nil
	default:
		return fmt.Errorf("check stream %s: %w", StreamName, err)
	}
}
