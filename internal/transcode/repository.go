// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediaforge/internal/database"
)

// Repository persists jobs, renditions and job logs. Only the Tracker calls
// it.
type Repository interface {
	InsertJobs(ctx context.Context, jobs []*Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	ListBySource(ctx context.Context, sourceKey string) ([]*Job, error)
	ListByStatus(ctx context.Context, status Status) ([]*Job, error)
	// QueuedIDs returns up to limit queued job IDs, oldest first.
	QueuedIDs(ctx context.Context, limit int) ([]string, error)

	// CompleteJob updates job and inserts its rendition atomically.
	CompleteJob(ctx context.Context, job *Job, r *Rendition) error
	GetRendition(ctx context.Context, jobID string) (*Rendition, error)
	UpdateRendition(ctx context.Context, r *Rendition) error
	ListRenditions(ctx context.Context, sourceKey string) ([]*Rendition, error)
	ListUnpublished(ctx context.Context, limit int) ([]*Rendition, error)

	AppendLog(ctx context.Context, jobID string, line LogLine) error
	Logs(ctx context.Context, jobID string) ([]LogLine, error)
}

// DuckDBRepository implements Repository on the job database.
type DuckDBRepository struct {
	conn *sql.DB
}

// NewDuckDBRepository uses db's connection pool.
func NewDuckDBRepository(db *database.DB) *DuckDBRepository {
	return &DuckDBRepository{conn: db.Conn()}
}

const jobColumns = `id, source_key, content_type, profile, status, progress, output_key, failure_reason,
	attempt, retry_of, queued_at, started_at, finished_at, updated_at`

const renditionColumns = `job_id, source_key, profile, output_key, cdn_url, ready, created_at, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j        Job
		status   string
		started  sql.NullTime
		finished sql.NullTime
	)
	err := row.Scan(&j.ID, &j.SourceKey, &j.ContentType, &j.Profile, &status, &j.Progress, &j.OutputKey,
		&j.FailureReason, &j.Attempt, &j.RetryOf, &j.QueuedAt, &started, &finished, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.QueuedAt = j.QueuedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	j.StartedAt = fromNullTime(started)
	j.FinishedAt = fromNullTime(finished)
	return &j, nil
}

func scanRendition(row rowScanner) (*Rendition, error) {
	var (
		r         Rendition
		published sql.NullTime
	)
	err := row.Scan(&r.JobID, &r.SourceKey, &r.Profile, &r.OutputKey, &r.CDNURL, &r.Ready, &r.CreatedAt, &published)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.PublishedAt = fromNullTime(published)
	return &r, nil
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// nullableTime converts an optional timestamp into a driver argument.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (r *DuckDBRepository) InsertJobs(ctx context.Context, jobs []*Job) (err error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { database.Observe("insert", "transcoding_jobs", start, err) }()

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert jobs: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const q = `INSERT INTO transcoding_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, j := range jobs {
		_, err = tx.ExecContext(ctx, q, j.ID, j.SourceKey, j.ContentType, j.Profile, string(j.Status), j.Progress,
			j.OutputKey, j.FailureReason, j.Attempt, j.RetryOf, j.QueuedAt.UTC(),
			nullableTime(j.StartedAt), nullableTime(j.FinishedAt), j.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert job %s: %w", j.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert jobs: %w", err)
	}
	return nil
}

func (r *DuckDBRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	row := r.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM transcoding_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	database.Observe("select", "transcoding_jobs", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (r *DuckDBRepository) UpdateJob(ctx context.Context, j *Job) error {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	res, err := r.conn.ExecContext(ctx, `UPDATE transcoding_jobs SET
			status = ?, progress = ?, output_key = ?, failure_reason = ?,
			started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`,
		string(j.Status), j.Progress, j.OutputKey, j.FailureReason,
		nullableTime(j.StartedAt), nullableTime(j.FinishedAt), j.UpdatedAt.UTC(), j.ID)
	database.Observe("update", "transcoding_jobs", start, err)
	if err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *DuckDBRepository) listJobs(ctx context.Context, where string, arg any) ([]*Job, error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM transcoding_jobs WHERE `+where+` ORDER BY queued_at, attempt, profile`, arg)
	if err != nil {
		database.Observe("select", "transcoding_jobs", start, err)
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	err = rows.Err()
	database.Observe("select", "transcoding_jobs", start, err)
	return jobs, err
}

func (r *DuckDBRepository) ListBySource(ctx context.Context, sourceKey string) ([]*Job, error) {
	return r.listJobs(ctx, "source_key = ?", sourceKey)
}

func (r *DuckDBRepository) ListByStatus(ctx context.Context, status Status) ([]*Job, error) {
	return r.listJobs(ctx, "status = ?", string(status))
}

func (r *DuckDBRepository) QueuedIDs(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id FROM transcoding_jobs WHERE status = ? ORDER BY queued_at, id LIMIT ?`,
		string(StatusQueued), limit)
	if err != nil {
		database.Observe("select", "transcoding_jobs", start, err)
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	database.Observe("select", "transcoding_jobs", start, err)
	return ids, err
}

func (r *DuckDBRepository) CompleteJob(ctx context.Context, j *Job, rend *Rendition) (err error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { database.Observe("complete", "transcoding_jobs", start, err) }()

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete job: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `UPDATE transcoding_jobs SET
			status = ?, progress = ?, output_key = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`,
		string(j.Status), j.Progress, j.OutputKey, nullableTime(j.FinishedAt), j.UpdatedAt.UTC(), j.ID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO renditions (`+renditionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rend.JobID, rend.SourceKey, rend.Profile, rend.OutputKey, rend.CDNURL, rend.Ready,
		rend.CreatedAt.UTC(), nullableTime(rend.PublishedAt))
	if err != nil {
		return fmt.Errorf("insert rendition %s: %w", rend.JobID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit complete job: %w", err)
	}
	return nil
}

func (r *DuckDBRepository) GetRendition(ctx context.Context, jobID string) (*Rendition, error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	row := r.conn.QueryRowContext(ctx, `SELECT `+renditionColumns+` FROM renditions WHERE job_id = ?`, jobID)
	rend, err := scanRendition(row)
	database.Observe("select", "renditions", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRenditionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rendition %s: %w", jobID, err)
	}
	return rend, nil
}

func (r *DuckDBRepository) UpdateRendition(ctx context.Context, rend *Rendition) error {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	_, err := r.conn.ExecContext(ctx,
		`UPDATE renditions SET cdn_url = ?, ready = ?, published_at = ? WHERE job_id = ?`,
		rend.CDNURL, rend.Ready, nullableTime(rend.PublishedAt), rend.JobID)
	database.Observe("update", "renditions", start, err)
	if err != nil {
		return fmt.Errorf("update rendition %s: %w", rend.JobID, err)
	}
	return nil
}

func (r *DuckDBRepository) listRenditions(ctx context.Context, query string, arg any) ([]*Rendition, error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	rows, err := r.conn.QueryContext(ctx, query, arg)
	if err != nil {
		database.Observe("select", "renditions", start, err)
		return nil, fmt.Errorf("list renditions: %w", err)
	}
	defer rows.Close()

	var out []*Rendition
	for rows.Next() {
		rend, err := scanRendition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rendition: %w", err)
		}
		out = append(out, rend)
	}
	err = rows.Err()
	database.Observe("select", "renditions", start, err)
	return out, err
}

func (r *DuckDBRepository) ListRenditions(ctx context.Context, sourceKey string) ([]*Rendition, error) {
	return r.listRenditions(ctx,
		`SELECT `+renditionColumns+` FROM renditions WHERE source_key = ? ORDER BY created_at, profile`, sourceKey)
}

func (r *DuckDBRepository) ListUnpublished(ctx context.Context, limit int) ([]*Rendition, error) {
	return r.listRenditions(ctx,
		`SELECT `+renditionColumns+` FROM renditions WHERE NOT ready ORDER BY created_at, job_id LIMIT ?`, limit)
}

func (r *DuckDBRepository) AppendLog(ctx context.Context, jobID string, line LogLine) error {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, logged_at, level, message) VALUES (?, ?, ?, ?)`,
		jobID, line.Time.UTC(), line.Level, line.Message)
	database.Observe("insert", "job_logs", start, err)
	if err != nil {
		return fmt.Errorf("append log for %s: %w", jobID, err)
	}
	return nil
}

func (r *DuckDBRepository) Logs(ctx context.Context, jobID string) ([]LogLine, error) {
	ctx, cancel := database.EnsureContext(ctx)
	defer cancel()
	start := time.Now()

	rows, err := r.conn.QueryContext(ctx,
		`SELECT logged_at, level, message FROM job_logs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		database.Observe("select", "job_logs", start, err)
		return nil, fmt.Errorf("read logs for %s: %w", jobID, err)
	}
	defer rows.Close()

	lines := []LogLine{}
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.Time, &l.Level, &l.Message); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		l.Time = l.Time.UTC()
		lines = append(lines, l)
	}
	err = rows.Err()
	database.Observe("select", "job_logs", start, err)
	return lines, err
}
