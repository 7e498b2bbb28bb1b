// Package snapshot caches loaded record sets on disk with a TTL.
//
// Reading a large table on every CLI invocation is the slowest part of an average
// computation; a snapshot lets repeated runs against the same source reuse the last
// fetch until it expires. Entries are JSON files named by the SHA-256 of the source
// key, written atomically through a temporary file and rename.
package snapshot
