// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	prefixSession   = "session:"
	prefixByCreator = "session_by_creator:"
)

// Repository persists session records. Callers serialize writes to one
// session through the manager's session locks.
type Repository interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	ListByCreator(ctx context.Context, creatorID string) ([]*Session, error)
	// ListByStatus returns every session in one of statuses.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Session, error)
}

// BadgerRepository stores sessions as JSON under session:<id>, with an
// index key session_by_creator:<creator>:<id> for per-creator listing.
type BadgerRepository struct {
	db        *badger.DB
	retention time.Duration
}

// NewBadgerRepository uses db, normally the chunk store's instance.
// Terminal sessions are dropped retention after their last update when
// retention > 0.
func NewBadgerRepository(db *badger.DB, retention time.Duration) *BadgerRepository {
	return &BadgerRepository{db: db, retention: retention}
}

func sessionKey(id string) []byte {
	return []byte(prefixSession + id)
}

func creatorKey(creatorID, id string) []byte {
	return []byte(prefixByCreator + creatorID + ":" + id)
}

// Get returns ErrSessionNotFound for unknown ids.
func (r *BadgerRepository) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s Session
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &s, nil
}

// Save writes the session and its creator index entry in one transaction.
func (r *BadgerRepository) Save(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		se := badger.NewEntry(sessionKey(s.ID), data)
		ie := badger.NewEntry(creatorKey(s.CreatorID, s.ID), nil)
		if s.Status.Terminal() && r.retention > 0 {
			se = se.WithTTL(r.retention)
			ie = ie.WithTTL(r.retention)
		}
		if err := txn.SetEntry(se); err != nil {
			return err
		}
		return txn.SetEntry(ie)
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// ListByCreator returns the creator's sessions, newest first.
func (r *BadgerRepository) ListByCreator(ctx context.Context, creatorID string) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(prefixByCreator + creatorID + ":")

	var sessions []*Session
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			item, err := txn.Get(sessionKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var s Session
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &s) }); err != nil {
				return err
			}
			sessions = append(sessions, &s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", creatorID, err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// ListByStatus scans every session record.
func (r *BadgerRepository) ListByStatus(ctx context.Context, statuses ...Status) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	prefix := []byte(prefixSession)

	var sessions []*Session
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var s Session
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &s) }); err != nil {
				return err
			}
			if want[s.Status] {
				sessions = append(sessions, &s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return sessions, nil
}

var _ Repository = (*BadgerRepository)(nil)
