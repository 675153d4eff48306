// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package transcode turns finalized sources into renditions.

Every upload.source_ready event enqueues one job per quality profile.
Jobs move through

	queued -> running -> completed
	   |         |
	   +---------+----> failed

and never leave completed or failed. A failed job can be retried, which
queues a new job with Attempt+1 and RetryOf pointing at the old one.

Tracker owns job state. Pool workers claim the oldest queued job, run it
through a Runner under a per-job timeout and report progress, completion or
failure back to the Tracker. Progress is clamped to 0..99 while running and
only Complete sets 100. Reports lower than the recorded value are counted
and ignored.

FFmpegRunner is the production Runner. It downloads the source from object
storage, probes its duration with ffprobe, encodes with ffmpeg reading
-progress pipe:1 for out_time_us, and uploads the result to
renditions/<source key>/<profile>.<ext>.

Completion inserts a Rendition and publishes transcode.rendition_ready for
the CDN publisher, which later stamps the rendition with its playback URL
through MarkPublished.
*/
package transcode
