// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package websocket pushes live transcoding job status to connected clients.

The Hub is a suture service that owns the client set. JobStatusHandler
consumes transcode.job_status from the event bus and hands each event to
the hub, which fans it out to every client whose filter matches:

  - a client opened with ?source=<key> receives events for that source only
  - otherwise a client receives events for every source of its creator

Messages are JSON:

	{"type": "job_status", "data": {"job_id": "...", "status": "running", "progress": 42, ...}}

Clients may send {"type": "ping"} and receive {"type": "pong"}. Slow
clients whose send buffer is full are disconnected rather than allowed to
stall the hub.
*/
package websocket
