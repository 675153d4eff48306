// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/logging"
)

const (
	prefixChunk  = "chunk:"
	prefixDigest = "chunkdigest:"
)

// OpenDB opens (or creates) the BadgerDB instance shared by the chunk
// store and the upload session repository.
func OpenDB(cfg config.ChunkStoreConfig) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Chunk store opened")
	return db, nil
}

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db       *badger.DB
	ttl      time.Duration
	maxValue int64
}

// NewBadgerStore wraps db. Entries expire after ttl when ttl > 0, which
// bounds disk usage for sessions the sweeper never reaches.
func NewBadgerStore(db *badger.DB, ttl time.Duration) *BadgerStore {
	opts := db.Opts()
	maxValue := opts.ValueLogFileSize
	if opts.InMemory && maxValue > config.InMemoryMaxValueSize {
		maxValue = config.InMemoryMaxValueSize
	}
	return &BadgerStore{db: db, ttl: ttl, maxValue: maxValue}
}

func chunkKey(sessionID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", prefixChunk, sessionID, index))
}

func digestKey(sessionID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", prefixDigest, sessionID, index))
}

func (s *BadgerStore) entry(key, value []byte) *badger.Entry {
	e := badger.NewEntry(key, value)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, sessionID string, index int, data []byte) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutStored, err
	}
	if s.db.IsClosed() {
		return PutStored, ErrStoreClosed
	}
	// Checked here because Badger's own size error embeds the value bytes.
	if int64(len(data)) > s.maxValue {
		return PutStored, fmt.Errorf("%w: chunk %s/%d has %d bytes, limit %d", ErrChunkTooLarge, sessionID, index, len(data), s.maxValue)
	}

	digest := Digest(data)
	var (
		result PutResult
		err    error
	)
	// Two writers racing on the same index surface as a Badger txn
	// conflict; the retry then sees the winner's digest.
	for attempt := 0; attempt < 3; attempt++ {
		result, err = s.put(sessionID, index, data, digest)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrChunkConflict) {
			return PutStored, err
		}
		return PutStored, fmt.Errorf("put chunk %s/%d: %w", sessionID, index, err)
	}
	return result, nil
}

func (s *BadgerStore) put(sessionID string, index int, data []byte, digest string) (PutResult, error) {
	result := PutStored
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(digestKey(sessionID, index))
		switch {
		case err == nil:
			existing, verr := item.ValueCopy(nil)
			if verr != nil {
				return verr
			}
			if string(existing) != digest {
				return ErrChunkConflict
			}
			result = PutUnchanged
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := txn.SetEntry(s.entry(chunkKey(sessionID, index), data)); err != nil {
			return err
		}
		return txn.SetEntry(s.entry(digestKey(sessionID, index), []byte(digest)))
	})
	return result, err
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, sessionID string, index int) ([]byte, error) {
	return s.read(ctx, chunkKey(sessionID, index))
}

// Digest implements Store.
func (s *BadgerStore) Digest(ctx context.Context, sessionID string, index int) (string, error) {
	b, err := s.read(ctx, digestKey(sessionID, index))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *BadgerStore) read(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, ErrStoreClosed
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return out, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, sessionID string, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrStoreClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(chunkKey(sessionID, index)); err != nil {
			return err
		}
		return txn.Delete(digestKey(sessionID, index))
	})
	if err != nil {
		return fmt.Errorf("delete chunk %s/%d: %w", sessionID, index, err)
	}
	return nil
}

// DeleteSession implements Store.
func (s *BadgerStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.db.IsClosed() {
		return 0, ErrStoreClosed
	}

	chunkPrefix := []byte(prefixChunk + sessionID + ":")
	digestPrefix := []byte(prefixDigest + sessionID + ":")

	var keys [][]byte
	chunks := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(chunkPrefix); it.ValidForPrefix(chunkPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
			chunks++
		}
		for it.Seek(digestPrefix); it.ValidForPrefix(digestPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan session %s: %w", sessionID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete chunks of %s: %w", sessionID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush delete of %s: %w", sessionID, err)
	}
	return chunks, nil
}

var _ Store = (*BadgerStore)(nil)
