// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
)

// ConsumerName is the durable consumer that turns finalized uploads into jobs.
const ConsumerName = "transcode-enqueue"

// SourceReadyHandler enqueues one job per profile for every
// upload.source_ready event. Redelivery is harmless since Enqueue is
// idempotent per source key.
func SourceReadyHandler(t *Tracker) message.NoPublishHandlerFunc {
	return events.Handle(events.TopicSourceReady, func(ctx context.Context, ev events.SourceReady) error {
		ids, err := t.Enqueue(ctx, ev.SourceKey, ev.ContentType)
		if errors.Is(err, ErrInvalidSource) {
			// Retrying cannot fix an empty key.
			logging.Ctx(ctx).Error().Str("session_id", ev.SessionID).Msg("Dropping source_ready without a source key")
			return nil
		}
		if err != nil {
			return err
		}
		logging.Ctx(ctx).Debug().Str("source_key", ev.SourceKey).Strs("job_ids", ids).Msg("Source enqueued")
		return nil
	})
}
