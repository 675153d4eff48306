// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/mediaforge/internal/chunkstore"
	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
	"github.com/tomtom215/mediaforge/internal/objectstore"
	"github.com/tomtom215/mediaforge/internal/validation"
)

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// CreateRequest holds the parameters of a new session.
// ChunkSize 0 selects the configured default.
type CreateRequest struct {
	CreatorID   string
	Filename    string
	ContentType string
	TotalSize   int64
	ChunkSize   int64
}

// ChunkOutcome classifies an accepted chunk submission.
type ChunkOutcome string

const (
	ChunkAccepted  ChunkOutcome = "accepted"
	ChunkDuplicate ChunkOutcome = "duplicate"
)

// ChunkResult describes the session after a chunk submission.
type ChunkResult struct {
	SessionID      string
	Index          int
	Outcome        ChunkOutcome
	ReceivedChunks int
	TotalChunks    int
	Completed      bool
	StorageKey     string
}

// Manager owns upload sessions from creation to finalization or expiry.
// It is safe for concurrent use; chunks of one session may arrive in
// parallel and in any order.
type Manager struct {
	cfg       config.UploadConfig
	repo      Repository
	chunks    chunkstore.Store
	objects   objectstore.Store
	publisher EventPublisher
	allowed   map[string]bool
	locks     stripedLocks
	tempDir   string
	jobs      JobIndex
	now       func() time.Time
}

// JobIndex reports whether a finalized source has transcoding jobs.
type JobIndex interface {
	HasJobs(ctx context.Context, sourceKey string) (bool, error)
}

// reannounceGrace is how long a completed source may go without jobs
// before AnnouncePending publishes it again.
const reannounceGrace = time.Minute

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTempDir sets where chunks are reassembled before upload.
func WithTempDir(dir string) Option {
	return func(m *Manager) { m.tempDir = dir }
}

// WithJobIndex lets AnnouncePending repeat announcements that were
// published but never turned into jobs.
func WithJobIndex(idx JobIndex) Option {
	return func(m *Manager) { m.jobs = idx }
}

// NewManager wires the session manager.
func NewManager(cfg config.UploadConfig, repo Repository, chunks chunkstore.Store, objects objectstore.Store, publisher EventPublisher, opts ...Option) *Manager {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[validation.NormalizeMediaType(t)] = true
	}
	m := &Manager{
		cfg:       cfg,
		repo:      repo,
		chunks:    chunks,
		objects:   objects,
		publisher: publisher,
		allowed:   allowed,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates req and stores a new pending session.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	contentType := validation.NormalizeMediaType(req.ContentType)
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = m.cfg.DefaultChunkSize
	}

	switch {
	case strings.TrimSpace(req.CreatorID) == "":
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidUploadRequest)
	case strings.TrimSpace(req.Filename) == "":
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidUploadRequest)
	case req.TotalSize <= 0:
		return nil, fmt.Errorf("%w: total size must be positive", ErrInvalidUploadRequest)
	case chunkSize <= 0:
		return nil, fmt.Errorf("%w: chunk size must be positive", ErrInvalidUploadRequest)
	case m.cfg.MaxChunkSize > 0 && chunkSize > m.cfg.MaxChunkSize:
		return nil, fmt.Errorf("%w: chunk size %d exceeds maximum %d", ErrInvalidUploadRequest, chunkSize, m.cfg.MaxChunkSize)
	case m.cfg.MaxTotalSize > 0 && req.TotalSize > m.cfg.MaxTotalSize:
		return nil, fmt.Errorf("%w: total size %d exceeds maximum %d", ErrInvalidUploadRequest, req.TotalSize, m.cfg.MaxTotalSize)
	}
	if !m.allowed[contentType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, req.ContentType)
	}

	now := m.now().UTC()
	s := &Session{
		ID:             uuid.New().String(),
		CreatorID:      req.CreatorID,
		Filename:       req.Filename,
		ContentType:    contentType,
		TotalSize:      req.TotalSize,
		ChunkSize:      chunkSize,
		TotalChunks:    int((req.TotalSize + chunkSize - 1) / chunkSize),
		ReceivedChunks: []int{},
		ChunkDigests:   map[int]string{},
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.cfg.SessionTTL),
	}
	if err := m.repo.Save(ctx, s); err != nil {
		return nil, err
	}

	metrics.UploadSessionsCreated.WithLabelValues(MediaClass(contentType)).Inc()
	logging.Ctx(ctx).Info().
		Str("session_id", s.ID).
		Str("creator_id", s.CreatorID).
		Str("content_type", contentType).
		Int64("total_size", s.TotalSize).
		Int("total_chunks", s.TotalChunks).
		Msg("Upload session created")
	return s.Clone(), nil
}

// load returns the session if creatorID owns it. Sessions of other
// creators are reported as not found.
func (m *Manager) load(ctx context.Context, creatorID, sessionID string) (*Session, error) {
	s, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CreatorID != creatorID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(ctx context.Context, creatorID, sessionID string) (*Session, error) {
	s, err := m.load(ctx, creatorID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusPending && s.expiredAt(m.now()) {
		s.Status = StatusExpired
	}
	return s, nil
}

// List returns the creator's sessions, newest first.
func (m *Manager) List(ctx context.Context, creatorID string) ([]*Session, error) {
	sessions, err := m.repo.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	for _, s := range sessions {
		if s.Status == StatusPending && s.expiredAt(now) {
			s.Status = StatusExpired
		}
	}
	return sessions, nil
}

// AcceptChunk stores one chunk. Chunk bytes are written outside the
// session lock; only the merge into the received set is serialized. When
// the merge completes coverage the session is finalized before returning.
func (m *Manager) AcceptChunk(ctx context.Context, creatorID, sessionID string, index int, data []byte) (*ChunkResult, error) {
	s, err := m.load(ctx, creatorID, sessionID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= s.TotalChunks {
		metrics.RecordChunk("rejected", 0)
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrChunkIndexOutOfRange, index, s.TotalChunks)
	}
	if want := s.ExpectedChunkSize(index); int64(len(data)) != want {
		metrics.RecordChunk("rejected", 0)
		return nil, fmt.Errorf("%w: chunk %d has %d bytes, expected %d", ErrChunkSizeMismatch, index, len(data), want)
	}

	digest := chunkstore.Digest(data)
	if res, done, err := m.resolveKnownChunk(s, index, digest); done {
		return res, err
	}

	// Bytes left by a submission that never reached the merge below are
	// replaced, since the session never acknowledged them.
	_, err = m.chunks.Put(ctx, sessionID, index, data)
	overwrite := errors.Is(err, chunkstore.ErrChunkConflict)
	if err != nil && !overwrite {
		return nil, err
	}

	unlock := m.locks.lock(sessionID)
	s, err = m.repo.Get(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, err
	}
	if res, done, err := m.resolveKnownChunk(s, index, digest); done {
		unlock()
		return res, err
	}
	if overwrite {
		if err := m.replaceChunk(ctx, sessionID, index, data); err != nil {
			unlock()
			return nil, err
		}
	}
	s.addChunk(index, digest)
	s.UpdatedAt = m.now().UTC()
	if err := m.repo.Save(ctx, s); err != nil {
		unlock()
		return nil, err
	}
	shouldFinalize := s.Complete() && s.Status == StatusPending
	res := chunkResult(s, index, ChunkAccepted)
	unlock()

	metrics.RecordChunk(string(ChunkAccepted), len(data))
	logging.Ctx(ctx).Debug().
		Str("session_id", sessionID).
		Int("index", index).
		Int("received", res.ReceivedChunks).
		Int("total", res.TotalChunks).
		Msg("Chunk accepted")

	if !shouldFinalize {
		return res, nil
	}

	key, err := m.Finalize(ctx, creatorID, sessionID)
	switch {
	case err == nil:
		res.Completed = true
		res.StorageKey = key
		return res, nil
	case errors.Is(err, ErrFinalizeInProgress):
		return res, nil
	default:
		return res, err
	}
}

// resolveKnownChunk handles submissions that cannot change the session:
// expired or completed sessions and indices that were already received.
// done is false when the chunk still needs to be stored.
func (m *Manager) resolveKnownChunk(s *Session, index int, digest string) (res *ChunkResult, done bool, err error) {
	if s.expiredAt(m.now()) {
		return nil, true, ErrSessionExpired
	}
	known := s.HasChunk(index) && s.ChunkDigests[index] == digest
	if known {
		metrics.RecordChunk(string(ChunkDuplicate), 0)
		return chunkResult(s, index, ChunkDuplicate), true, nil
	}
	// A completed session holds every index, so any other bytes are a
	// write to a closed session rather than a conflict within it.
	if s.Status == StatusCompleted {
		metrics.RecordChunk("rejected", 0)
		return nil, true, ErrSessionAlreadyCompleted
	}
	if s.HasChunk(index) {
		metrics.RecordChunk("rejected", 0)
		return nil, true, fmt.Errorf("%w: chunk %d", ErrChunkConflict, index)
	}
	return nil, false, nil
}

func (m *Manager) replaceChunk(ctx context.Context, sessionID string, index int, data []byte) error {
	if err := m.chunks.Delete(ctx, sessionID, index); err != nil {
		return err
	}
	_, err := m.chunks.Put(ctx, sessionID, index, data)
	return err
}

func chunkResult(s *Session, index int, outcome ChunkOutcome) *ChunkResult {
	return &ChunkResult{
		SessionID:      s.ID,
		Index:          index,
		Outcome:        outcome,
		ReceivedChunks: len(s.ReceivedChunks),
		TotalChunks:    s.TotalChunks,
		Completed:      s.Status == StatusCompleted,
		StorageKey:     s.StorageKey,
	}
}

// Finalize reassembles the chunks into object storage. It runs at most
// once per session: the caller that moves the session from pending to
// finalizing does the work, concurrent callers get ErrFinalizeInProgress,
// and callers after completion get the existing storage key.
func (m *Manager) Finalize(ctx context.Context, creatorID, sessionID string) (string, error) {
	unlock := m.locks.lock(sessionID)
	s, err := m.load(ctx, creatorID, sessionID)
	if err != nil {
		unlock()
		return "", err
	}
	switch {
	case s.Status == StatusCompleted:
		unlock()
		if !s.Announced {
			m.announce(ctx, s)
		}
		return s.StorageKey, nil
	case s.Status == StatusFinalizing:
		unlock()
		return "", ErrFinalizeInProgress
	case s.expiredAt(m.now()):
		unlock()
		return "", ErrSessionExpired
	case !s.Complete():
		unlock()
		return "", fmt.Errorf("%w: %d of %d chunks received", ErrIncompleteUpload, len(s.ReceivedChunks), s.TotalChunks)
	}
	s.Status = StatusFinalizing
	s.UpdatedAt = m.now().UTC()
	if err := m.repo.Save(ctx, s); err != nil {
		unlock()
		return "", err
	}
	unlock()

	start := time.Now()
	key := SourceKey(s.CreatorID, s.ID, s.Filename)
	if err := m.assemble(ctx, s, key); err != nil {
		outcome := "error"
		var ierr *IntegrityError
		if errors.As(err, &ierr) {
			outcome = "corrupted"
		}
		metrics.RecordFinalize(outcome, time.Since(start))
		if rerr := m.revert(ctx, sessionID, ierr); rerr != nil {
			logging.Ctx(ctx).Error().Err(rerr).Str("session_id", sessionID).Msg("Failed to revert session after finalize error")
		}
		return "", err
	}

	unlock = m.locks.lock(sessionID)
	s, err = m.repo.Get(ctx, sessionID)
	if err != nil {
		unlock()
		return "", err
	}
	now := m.now().UTC()
	s.Status = StatusCompleted
	s.StorageKey = key
	s.CompletedAt = &now
	s.UpdatedAt = now
	if err := m.repo.Save(ctx, s); err != nil {
		unlock()
		return "", err
	}
	unlock()
	metrics.RecordFinalize("completed", time.Since(start))

	if n, err := m.chunks.DeleteSession(ctx, sessionID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("Failed to purge chunks of completed session")
	} else {
		logging.Ctx(ctx).Debug().Str("session_id", sessionID).Int("chunks", n).Msg("Purged chunks")
	}

	logging.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Str("storage_key", key).
		Int64("total_size", s.TotalSize).
		Dur("duration", time.Since(start)).
		Msg("Upload finalized")

	m.announce(ctx, s)
	return key, nil
}

// assemble streams chunks in index order into a temp file, verifying
// every chunk against the digest recorded when it was accepted, and
// uploads the file under key.
func (m *Manager) assemble(ctx context.Context, s *Session, key string) error {
	f, err := os.CreateTemp(m.tempDir, "mediaforge-assemble-*")
	if err != nil {
		return fmt.Errorf("create assembly file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	var (
		missing, corrupted []int
		written            int64
	)
	for i := 0; i < s.TotalChunks; i++ {
		data, err := m.chunks.Get(ctx, s.ID, i)
		if errors.Is(err, chunkstore.ErrChunkNotFound) {
			missing = append(missing, i)
			continue
		}
		if err != nil {
			return err
		}
		if chunkstore.Digest(data) != s.ChunkDigests[i] || int64(len(data)) != s.ExpectedChunkSize(i) {
			corrupted = append(corrupted, i)
			continue
		}
		n, err := f.Write(data)
		if err != nil {
			return fmt.Errorf("write assembly file: %w", err)
		}
		written += int64(n)
	}

	switch {
	case len(missing) > 0:
		return &IntegrityError{Err: ErrChunkNotFound, Indices: append(missing, corrupted...)}
	case len(corrupted) > 0:
		return &IntegrityError{Err: ErrChunkCorrupted, Indices: corrupted}
	case written != s.TotalSize:
		return &IntegrityError{Err: ErrChunkCorrupted, Indices: []int{}}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind assembly file: %w", err)
	}
	if err := m.objects.Put(ctx, key, f, written, s.ContentType); err != nil {
		return fmt.Errorf("store source %s: %w", key, err)
	}
	return nil
}

// revert returns a finalizing session to pending. Indices named by ierr
// are dropped from the received set and the chunk store so the client can
// upload them again. A size mismatch with no specific index drops every
// chunk.
func (m *Manager) revert(ctx context.Context, sessionID string, ierr *IntegrityError) error {
	unlock := m.locks.lock(sessionID)
	defer unlock()

	s, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != StatusFinalizing {
		return nil
	}
	s.Status = StatusPending
	s.UpdatedAt = m.now().UTC()

	if ierr != nil {
		drop := ierr.Indices
		if len(drop) == 0 {
			drop = append([]int(nil), s.ReceivedChunks...)
		}
		for _, i := range drop {
			s.dropChunk(i)
			if err := m.chunks.Delete(ctx, sessionID, i); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Int("index", i).Msg("Failed to delete corrupted chunk")
			}
		}
		logging.Ctx(ctx).Warn().
			Str("session_id", sessionID).
			Ints("indices", drop).
			Err(ierr.Err).
			Msg("Finalize integrity check failed, chunks must be resent")
	}
	return m.repo.Save(ctx, s)
}

// announce publishes upload.source_ready and records that it did. A
// failed publish is retried by a later Finalize call or by the sweeper.
func (m *Manager) announce(ctx context.Context, s *Session) {
	if m.publisher == nil {
		return
	}
	ev := events.SourceReady{
		SessionID:   s.ID,
		CreatorID:   s.CreatorID,
		SourceKey:   s.StorageKey,
		ContentType: s.ContentType,
		TotalSize:   s.TotalSize,
	}
	if s.CompletedAt != nil {
		ev.CompletedAt = *s.CompletedAt
	}
	if err := m.publisher.Publish(ctx, events.TopicSourceReady, ev); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("session_id", s.ID).Msg("Failed to announce finalized source")
		return
	}

	unlock := m.locks.lock(s.ID)
	defer unlock()
	cur, err := m.repo.Get(ctx, s.ID)
	if err != nil {
		return
	}
	cur.Announced = true
	if err := m.repo.Save(ctx, cur); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", s.ID).Msg("Failed to record announcement")
	}
}

// Abort expires a pending session on the creator's request.
func (m *Manager) Abort(ctx context.Context, creatorID, sessionID string) error {
	unlock := m.locks.lock(sessionID)
	s, err := m.load(ctx, creatorID, sessionID)
	if err != nil {
		unlock()
		return err
	}
	switch s.Status {
	case StatusCompleted:
		unlock()
		return ErrSessionAlreadyCompleted
	case StatusFinalizing:
		unlock()
		return ErrFinalizeInProgress
	case StatusExpired:
		unlock()
		return nil
	}
	s.Status = StatusExpired
	s.UpdatedAt = m.now().UTC()
	err = m.repo.Save(ctx, s)
	unlock()
	if err != nil {
		return err
	}

	metrics.UploadSessionsExpired.Inc()
	if _, err := m.chunks.DeleteSession(ctx, sessionID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("Failed to purge chunks of aborted session")
	}
	logging.Ctx(ctx).Info().Str("session_id", sessionID).Msg("Upload session aborted")
	return nil
}

// ExpireStale expires every pending session whose TTL elapsed at now and
// purges its chunks. It returns how many sessions were expired.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	candidates, err := m.repo.ListByStatus(ctx, StatusPending)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, c := range candidates {
		if now.Before(c.ExpiresAt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		unlock := m.locks.lock(c.ID)
		s, err := m.repo.Get(ctx, c.ID)
		if err != nil || s.Status != StatusPending || now.Before(s.ExpiresAt) {
			unlock()
			continue
		}
		s.Status = StatusExpired
		s.UpdatedAt = now.UTC()
		err = m.repo.Save(ctx, s)
		unlock()
		if err != nil {
			return expired, err
		}

		expired++
		metrics.UploadSessionsExpired.Inc()
		if _, err := m.chunks.DeleteSession(ctx, s.ID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("session_id", s.ID).Msg("Failed to purge chunks of expired session")
		}
	}
	if expired > 0 {
		logging.Ctx(ctx).Info().Int("expired", expired).Msg("Expired stale upload sessions")
	}
	return expired, nil
}

// RecoverInterrupted returns sessions left in finalizing by a crash to
// pending. It must only run before the manager serves requests.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	sessions, err := m.repo.ListByStatus(ctx, StatusFinalizing)
	if err != nil {
		return 0, err
	}
	for _, s := range sessions {
		if err := m.revert(ctx, s.ID, nil); err != nil {
			return 0, err
		}
		logging.Ctx(ctx).Warn().Str("session_id", s.ID).Msg("Reset interrupted finalization")
	}
	return len(sessions), nil
}

// AnnouncePending republishes upload.source_ready for completed sessions
// whose earlier announcement failed. With a JobIndex it also republishes
// announced sessions that still have no jobs after reannounceGrace, which
// covers events the transport accepted but never delivered. Enqueue is
// idempotent per source, so a duplicate announcement is harmless.
func (m *Manager) AnnouncePending(ctx context.Context) error {
	sessions, err := m.repo.ListByStatus(ctx, StatusCompleted)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if !s.Announced {
			m.announce(ctx, s)
			continue
		}
		if m.jobs == nil || s.CompletedAt == nil || m.now().Sub(*s.CompletedAt) < reannounceGrace {
			continue
		}
		has, err := m.jobs.HasJobs(ctx, s.StorageKey)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("session_id", s.ID).Msg("Failed to check transcodes for source")
			continue
		}
		if !has {
			logging.Ctx(ctx).Warn().Str("session_id", s.ID).Str("source_key", s.StorageKey).Msg("Re-announcing source without transcodes")
			m.announce(ctx, s)
		}
	}
	return nil
}
