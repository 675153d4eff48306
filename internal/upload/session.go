// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package upload

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// Session is one resumable upload.
type Session struct {
	ID          string `json:"id"`
	CreatorID   string `json:"creator_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	TotalSize   int64  `json:"total_size"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`

	// ReceivedChunks is kept sorted.
	ReceivedChunks []int          `json:"received_chunks"`
	ChunkDigests   map[int]string `json:"chunk_digests"`

	Status     Status `json:"status"`
	StorageKey string `json:"storage_key,omitempty"`

	// Announced is set once upload.source_ready was published.
	Announced bool `json:"announced"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExpectedChunkSize returns the byte length chunk index must have. Every
// chunk is ChunkSize long except the last, which carries the remainder.
func (s *Session) ExpectedChunkSize(index int) int64 {
	if index < 0 || index >= s.TotalChunks {
		return 0
	}
	if index == s.TotalChunks-1 {
		return s.TotalSize - int64(s.TotalChunks-1)*s.ChunkSize
	}
	return s.ChunkSize
}

// HasChunk reports whether index was received.
func (s *Session) HasChunk(index int) bool {
	i := sort.SearchInts(s.ReceivedChunks, index)
	return i < len(s.ReceivedChunks) && s.ReceivedChunks[i] == index
}

// Complete reports full coverage of [0, TotalChunks).
func (s *Session) Complete() bool {
	return len(s.ReceivedChunks) == s.TotalChunks
}

// MissingChunks lists indices not yet received, ascending.
func (s *Session) MissingChunks() []int {
	missing := make([]int, 0, s.TotalChunks-len(s.ReceivedChunks))
	j := 0
	for i := 0; i < s.TotalChunks; i++ {
		if j < len(s.ReceivedChunks) && s.ReceivedChunks[j] == i {
			j++
			continue
		}
		missing = append(missing, i)
	}
	return missing
}

func (s *Session) addChunk(index int, digest string) {
	i := sort.SearchInts(s.ReceivedChunks, index)
	if i < len(s.ReceivedChunks) && s.ReceivedChunks[i] == index {
		return
	}
	s.ReceivedChunks = append(s.ReceivedChunks, 0)
	copy(s.ReceivedChunks[i+1:], s.ReceivedChunks[i:])
	s.ReceivedChunks[i] = index
	if s.ChunkDigests == nil {
		s.ChunkDigests = make(map[int]string)
	}
	s.ChunkDigests[index] = digest
}

func (s *Session) dropChunk(index int) {
	i := sort.SearchInts(s.ReceivedChunks, index)
	if i < len(s.ReceivedChunks) && s.ReceivedChunks[i] == index {
		s.ReceivedChunks = append(s.ReceivedChunks[:i], s.ReceivedChunks[i+1:]...)
	}
	delete(s.ChunkDigests, index)
}

func (s *Session) expiredAt(now time.Time) bool {
	return s.Status == StatusExpired || (s.Status == StatusPending && !now.Before(s.ExpiresAt))
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	c := *s
	c.ReceivedChunks = append([]int(nil), s.ReceivedChunks...)
	c.ChunkDigests = make(map[int]string, len(s.ChunkDigests))
	for k, v := range s.ChunkDigests {
		c.ChunkDigests[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// MediaClass is "image" or "video" for an allowed content type.
func MediaClass(contentType string) string {
	if strings.HasPrefix(contentType, "image/") {
		return "image"
	}
	return "video"
}

// SourceKey is the object storage key of a finalized upload:
// sources/<creator>/<session>/<sanitized filename>.
func SourceKey(creatorID, sessionID, filename string) string {
	return path.Join("sources", sanitizeSegment(creatorID), sessionID, sanitizeFilename(filename))
}

// CreatorPrefix is the key prefix shared by every source of creatorID. A
// source key belongs to a creator iff it starts with this prefix.
func CreatorPrefix(creatorID string) string {
	return "sources/" + sanitizeSegment(creatorID) + "/"
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = sanitizeSegment(name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "source"
	}
	return name
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, ".") == "" {
		return "_"
	}
	return out
}
