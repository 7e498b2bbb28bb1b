package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rshade/cohort/internal/record"
)

const entryExtension = ".json"

// DefaultTTL is used when a Store is created with a non-positive TTL.
const DefaultTTL = time.Hour

// Store errors.
var (
	ErrNotFound   = errors.New("snapshot not found")
	ErrExpired    = errors.New("snapshot expired")
	ErrInvalidKey = errors.New("snapshot key cannot be empty")
	ErrNoDir      = errors.New("snapshot directory cannot be empty")
)

// Store keeps record snapshots as JSON files in one directory.
// It is safe for concurrent use.
type Store struct {
	dir string
	ttl time.Duration

	mu sync.RWMutex
}

// NewStore creates dir if needed and returns a Store writing entries that live for ttl.
func NewStore(dir string, ttl time.Duration) (*Store, error) {
	if dir == "" {
		return nil, ErrNoDir
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Store{dir: dir, ttl: ttl}, nil
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// TTL returns the lifetime given to new entries.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the records cached under key. It returns ErrNotFound when there is no
// entry and ErrExpired, after removing the file, when the entry is stale.
func (s *Store) Get(key string) ([]record.Record, error) {
	entry, err := s.entry(key)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(entry.Records))
	dec.UseNumber()
	var records []record.Record
	if err = dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return records, nil
}

func (s *Store) entry(key string) (*Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	path := s.pathFor(key)
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var entry Entry
	if err = json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if entry.IsExpired() {
		s.mu.Lock()
		_ = os.Remove(path)
		s.mu.Unlock()
		return nil, ErrExpired
	}
	return &entry, nil
}

// Put caches records under key, replacing any existing entry.
func (s *Store) Put(key string, records []record.Record) error {
	if key == "" {
		return ErrInvalidKey
	}
	if records == nil {
		records = []record.Record{}
	}

	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	data, err := json.Marshal(newEntry(key, raw, len(records), s.ttl))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathFor(key)
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// Delete removes the entry for key. Deleting a missing entry is not an error.
func (s *Store) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Prune removes every expired or unreadable entry and returns how many files it removed.
func (s *Store) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	removed := 0
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != entryExtension {
			continue
		}
		path := filepath.Join(s.dir, de.Name())

		var entry Entry
		data, readErr := os.ReadFile(path)
		if readErr == nil && json.Unmarshal(data, &entry) == nil && !entry.IsExpired() {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *Store) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+entryExtension)
}
