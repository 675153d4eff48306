// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/mediaforge/internal/logging"
)

// Topics. All share the stream subjects upload.> and transcode.>.
const (
	TopicSourceReady    = "upload.source_ready"
	TopicRenditionReady = "transcode.rendition_ready"
	TopicJobStatus      = "transcode.job_status"
)

// SchemaVersion is stamped into message metadata.
const SchemaVersion = "1"

const (
	metaSchemaVersion = "schema_version"
	metaCorrelationID = "correlation_id"
	metaTopic         = "topic"
)

// SourceReady is published once an upload is durably stored.
type SourceReady struct {
	SessionID   string    `json:"session_id"`
	CreatorID   string    `json:"creator_id"`
	SourceKey   string    `json:"source_key"`
	ContentType string    `json:"content_type"`
	TotalSize   int64     `json:"total_size"`
	CompletedAt time.Time `json:"completed_at"`
}

// RenditionReady is published when a transcoding job completes.
type RenditionReady struct {
	JobID     string    `json:"job_id"`
	SourceKey string    `json:"source_key"`
	Profile   string    `json:"profile"`
	OutputKey string    `json:"output_key"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus is published on every job state or progress change.
type JobStatus struct {
	JobID         string    `json:"job_id"`
	SourceKey     string    `json:"source_key"`
	Profile       string    `json:"profile"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CDNURL        string    `json:"cdn_url,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewMessage encodes payload as JSON. The message UUID doubles as the
// JetStream dedup id.
func NewMessage(ctx context.Context, topic string, payload any) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metaSchemaVersion, SchemaVersion)
	msg.Metadata.Set(metaTopic, topic)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(metaCorrelationID, id)
	}
	return msg, nil
}

// Decode unmarshals a message payload into T.
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return v, nil
}

// Handle adapts a typed function into a Watermill consumer handler. The
// handler context carries the publisher's correlation ID. Malformed
// payloads are returned as errors and end up in the poison queue once
// retries are exhausted.
func Handle[T any](topic string, fn func(ctx context.Context, payload T) error) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ctx := msg.Context()
		if id := msg.Metadata.Get(metaCorrelationID); id != "" {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		} else {
			ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
		}

		payload, err := Decode[T](msg)
		if err == nil {
			err = fn(ctx, payload)
		}
		recordHandled(topic, err)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("topic", topic).
				Str("message_uuid", msg.UUID).
				Msg("Event handler failed")
		}
		return err
	}
}
