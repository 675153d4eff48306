// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package chunkstore holds the raw bytes of upload chunks until their
// session is finalized or expires.
//
// Chunks are addressed by (session ID, index). Each chunk is stored with a
// BLAKE2b-256 digest so a resent chunk can be classified as an identical
// duplicate or a conflicting rewrite without comparing the full payload.
//
// The BadgerDB implementation keys chunks as chunk:<session>:<index %08d>,
// which makes a prefix scan return one session's chunks in index order.
package chunkstore

import (
	"context"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrChunkNotFound is returned when a chunk has never been stored or
	// was already purged.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrChunkConflict is returned when a chunk index is rewritten with
	// bytes different from the ones already stored.
	ErrChunkConflict = errors.New("chunk already stored with different content")

	// ErrChunkTooLarge is returned when a chunk exceeds the largest value
	// the underlying database accepts.
	ErrChunkTooLarge = errors.New("chunk exceeds the store's value size limit")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("chunk store is closed")
)

// PutResult tells whether Put wrote new data.
type PutResult int

const (
	// PutStored means the chunk was written for the first time.
	PutStored PutResult = iota
	// PutUnchanged means identical bytes were already stored.
	PutUnchanged
)

// Store persists chunk bytes.
type Store interface {
	// Put stores data for (sessionID, index). Writing identical bytes again
	// is a no-op that returns PutUnchanged; different bytes return
	// ErrChunkConflict and leave the stored chunk untouched.
	Put(ctx context.Context, sessionID string, index int, data []byte) (PutResult, error)

	// Get returns the stored bytes or ErrChunkNotFound.
	Get(ctx context.Context, sessionID string, index int) ([]byte, error)

	// Digest returns the hex digest of the stored chunk or ErrChunkNotFound.
	Digest(ctx context.Context, sessionID string, index int) (string, error)

	// Delete removes one chunk so it can be resubmitted. Deleting a missing
	// chunk is not an error.
	Delete(ctx context.Context, sessionID string, index int) error

	// DeleteSession removes every chunk of a session and returns how many
	// chunks were removed.
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

// Digest returns the hex encoded BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
