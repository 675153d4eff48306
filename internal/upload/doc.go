// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package upload implements resumable chunked uploads.

A client creates a session announcing the file size and chunk size, then
sends chunks by index in any order and from any number of connections.
The session tracks which indices arrived together with each chunk's
BLAKE2b-256 digest. Resending a chunk with identical bytes is a harmless
duplicate; resending different bytes for an index already received is a
conflict.

# Lifecycle

	pending ──(all chunks)──> finalizing ──> completed
	   │                          │
	   │                          └──(integrity failure)──> pending
	   └──(TTL elapsed or aborted)──> expired

finalizing is held by exactly one caller. Finalization streams the chunks
in index order into object storage under
sources/<creator>/<session>/<filename>, verifies every digest and the total
size, marks the session completed, purges the chunk bytes and publishes
upload.source_ready.

# Storage

Session records live in the same BadgerDB instance as the chunk bytes,
under session:<id>, with a session_by_creator:<creator>:<id> index.

# Housekeeping

Sweeper runs under the supervisor's data layer. Each tick expires pending
sessions past their TTL and retries announcements that failed while the
event bus was unavailable.
*/
package upload
