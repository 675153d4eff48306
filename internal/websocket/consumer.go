// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/mediaforge/internal/events"
)

// ConsumerName is the durable consumer feeding the hub.
const ConsumerName = "websocket-job-status"

// JobStatusHandler forwards transcode.job_status events to hub. Delivery
// to browsers is best-effort, so the handler never asks for redelivery.
func JobStatusHandler(hub *Hub) message.NoPublishHandlerFunc {
	return events.Handle(events.TopicJobStatus, func(_ context.Context, ev events.JobStatus) error {
		hub.BroadcastJobStatus(ev)
		return nil
	})
}
