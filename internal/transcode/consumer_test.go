// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/mediaforge/internal/events"
)

func TestSourceReadyHandlerEnqueuesOnce(t *testing.T) {
	f := newFixture(t)
	handler := SourceReadyHandler(f.tracker)

	ev := events.SourceReady{SessionID: "s1", CreatorID: "c1", SourceKey: "sources/c1/s1/clip.mp4"}
	for i := 0; i < 2; i++ {
		msg, err := events.NewMessage(context.Background(), events.TopicSourceReady, ev)
		if err != nil {
			t.Fatal(err)
		}
		if err := handler(msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	jobs, err := f.tracker.ListBySource(context.Background(), ev.SourceKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 4 {
		t.Errorf("redelivery created %d jobs, want 4", len(jobs))
	}
}

func TestSourceReadyHandlerDropsEmptyKey(t *testing.T) {
	f := newFixture(t)
	msg, err := events.NewMessage(context.Background(), events.TopicSourceReady, events.SourceReady{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := SourceReadyHandler(f.tracker)(msg); err != nil {
		t.Errorf("empty source key should be acknowledged, got %v", err)
	}
}

func TestSourceReadyHandlerCarriesContentType(t *testing.T) {
	f := newFixture(t)
	runner := &fakeRunner{}
	stop := runPool(t, f, runner, time.Minute)
	defer stop()

	// The file name says nothing about the media type.
	ev := events.SourceReady{SessionID: "s2", CreatorID: "c1", SourceKey: "sources/c1/s2/avatar", ContentType: "image/png"}
	msg, err := events.NewMessage(context.Background(), events.TopicSourceReady, ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := SourceReadyHandler(f.tracker)(msg); err != nil {
		t.Fatal(err)
	}

	jobs := waitFor(t, f, ev.SourceKey, func(j *Job) bool { return j.Status == StatusCompleted })
	for _, j := range jobs {
		if j.ContentType != "image/png" {
			t.Errorf("job %s ContentType = %q, want image/png", j.ID, j.ContentType)
		}
		if want := "renditions/" + ev.SourceKey + "/" + j.Profile + ".png"; j.OutputKey != want {
			t.Errorf("OutputKey = %q, want %q", j.OutputKey, want)
		}
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, task := range runner.tasks {
		if !IsImage(task.ContentType) {
			t.Errorf("task for %s routed to the video pipeline (content type %q)", task.Profile.Name, task.ContentType)
		}
	}
}
