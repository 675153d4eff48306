// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 128

// keyLocks serializes work per job ID (and per source key for Enqueue).
type keyLocks struct {
	mu [lockStripes]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.mu[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
