// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range indexQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}
	return nil
}

// Timestamps are stored as UTC TIMESTAMP values supplied by the caller so
// the schema needs no ICU extension.
var tableQueries = []string{
	`CREATE TABLE IF NOT EXISTS transcoding_jobs (
		id TEXT PRIMARY KEY,
		source_key TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		profile TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		output_key TEXT NOT NULL DEFAULT '',
		failure_reason TEXT NOT NULL DEFAULT '',
		attempt INTEGER NOT NULL DEFAULT 1,
		retry_of TEXT NOT NULL DEFAULT '',
		queued_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS renditions (
		job_id TEXT PRIMARY KEY,
		source_key TEXT NOT NULL,
		profile TEXT NOT NULL,
		output_key TEXT NOT NULL,
		cdn_url TEXT NOT NULL DEFAULT '',
		ready BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL,
		published_at TIMESTAMP
	);`,

	`CREATE SEQUENCE IF NOT EXISTS job_log_seq;`,

	`CREATE TABLE IF NOT EXISTS job_logs (
		id BIGINT PRIMARY KEY DEFAULT nextval('job_log_seq'),
		job_id TEXT NOT NULL,
		logged_at TIMESTAMP NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);`,
}

// DuckDB rewrites an update of an indexed column as delete plus insert,
// which trips the primary key. Only immutable columns are indexed.
var indexQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_jobs_source ON transcoding_jobs(source_key);`,
	`CREATE INDEX IF NOT EXISTS idx_renditions_source ON renditions(source_key);`,
	`CREATE INDEX IF NOT EXISTS idx_job_logs_job ON job_logs(job_id, id);`,
}
