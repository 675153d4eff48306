// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package database owns the DuckDB instance that records transcoding jobs,
// their log lines and the renditions they produce.
//
// # Tables
//
//   - transcoding_jobs: one row per job (queued, running, completed, failed)
//   - renditions: one row per completed job, later stamped with a CDN URL
//   - job_logs: append-only log lines keyed by job, ordered by job_log_seq
//   - schema_migrations: applied versioned migrations
//
// The package only manages the connection pool and schema. Row access lives
// with the component that owns the data (transcode.DuckDBRepository), which
// reports timings through Observe.
//
// # Usage
//
//	db, err := database.New(&cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	repo := transcode.NewDuckDBRepository(db)
package database
