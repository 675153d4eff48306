// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package upload

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// stripedLocks maps session IDs onto a fixed set of mutexes. Two sessions
// may share a stripe; one session always maps to the same stripe.
type stripedLocks struct {
	mu [lockStripes]sync.Mutex
}

func (l *stripedLocks) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &l.mu[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
