// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordChunk(t *testing.T) {
	acceptedBefore := testutil.ToFloat64(UploadChunks.WithLabelValues("accepted"))
	dupBefore := testutil.ToFloat64(UploadChunks.WithLabelValues("duplicate"))
	bytesBefore := testutil.ToFloat64(UploadChunkBytes)

	RecordChunk("accepted", 400)
	RecordChunk("duplicate", 400)

	if got := testutil.ToFloat64(UploadChunks.WithLabelValues("accepted")) - acceptedBefore; got != 1 {
		t.Errorf("accepted delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(UploadChunks.WithLabelValues("duplicate")) - dupBefore; got != 1 {
		t.Errorf("duplicate delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(UploadChunkBytes) - bytesBefore; got != 400 {
		t.Errorf("bytes delta = %v, want 400 (duplicates must not count)", got)
	}
}

func TestRecordCDNRequest(t *testing.T) {
	okBefore := testutil.ToFloat64(CDNRequests.WithLabelValues("purge", "success"))
	errBefore := testutil.ToFloat64(CDNRequests.WithLabelValues("purge", "error"))

	RecordCDNRequest("purge", 10*time.Millisecond, nil)
	RecordCDNRequest("purge", 10*time.Millisecond, errors.New("timeout"))

	if got := testutil.ToFloat64(CDNRequests.WithLabelValues("purge", "success")) - okBefore; got != 1 {
		t.Errorf("success delta = %v", got)
	}
	if got := testutil.ToFloat64(CDNRequests.WithLabelValues("purge", "error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v", got)
	}
}

func TestRecordDBQueryCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "transcoding_jobs"))

	RecordDBQuery("insert", "transcoding_jobs", time.Millisecond, nil)
	RecordDBQuery("insert", "transcoding_jobs", time.Millisecond, errors.New("constraint"))

	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "transcoding_jobs")) - before; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("PUT", "/api/v1/uploads/{sessionID}/chunks/{index}", "200"))

	RecordAPIRequest("PUT", "/api/v1/uploads/{sessionID}/chunks/{index}", 200, 5*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("PUT", "/api/v1/uploads/{sessionID}/chunks/{index}", "200"))
	if after-before != 1 {
		t.Errorf("delta = %v, want 1", after-before)
	}
}

func TestMetricsLint(t *testing.T) {
	RecordJobTransition("720p", "completed")
	RecordFinalize("completed", time.Second)
	RecordObjectStoreOp("local", "put", time.Millisecond, nil)
	RecordEventPublished("upload.source_ready", nil)
	RecordEventHandled("upload.source_ready", nil)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}
