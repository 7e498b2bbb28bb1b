package snapshot

import (
	"encoding/json"
	"time"
)

// Entry is one cached record set with its expiry metadata.
type Entry struct {
	// Key identifies the source the records were loaded from.
	Key string `json:"key"`

	// Records is the cached record set as a JSON array.
	Records json.RawMessage `json:"records"`

	// Count is the number of records, kept for inspection without decoding.
	Count int `json:"count"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newEntry(key string, records json.RawMessage, count int, ttl time.Duration) *Entry {
	now := time.Now().UTC()
	return &Entry{
		Key:       key,
		Records:   records,
		Count:     count,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the entry is past its expiry.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}
