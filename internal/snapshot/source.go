package snapshot

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rshade/cohort/internal/record"
	"github.com/rshade/cohort/internal/source"
)

// Cached is a source.Source that serves records from a Store while the snapshot is
// fresh and reloads from the wrapped source otherwise.
type Cached struct {
	inner source.Source
	store *Store
	key   string
}

var _ source.Source = (*Cached)(nil)

// Wrap returns a Source caching inner's records in store under key.
func Wrap(inner source.Source, store *Store, key string) *Cached {
	return &Cached{inner: inner, store: store, key: key}
}

// Key builds the snapshot key for a source URI and table.
func Key(uri, table string) string {
	return uri + "#" + table
}

// Load implements source.Source. Snapshot read and write failures are logged and
// never fail the load.
func (c *Cached) Load(ctx context.Context) ([]record.Record, error) {
	logger := zerolog.Ctx(ctx)

	records, err := c.store.Get(c.key)
	switch {
	case err == nil:
		logger.Debug().Int("records", len(records)).Msg("serving records from snapshot")
		return records, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		logger.Debug().Err(err).Msg("snapshot miss")
	default:
		logger.Warn().Err(err).Msg("snapshot unreadable, reloading")
	}

	records, err = c.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	if putErr := c.store.Put(c.key, records); putErr != nil {
		logger.Warn().Err(putErr).Msg("failed to write snapshot")
	}
	return records, nil
}

// Close implements source.Source.
func (c *Cached) Close() error {
	return c.inner.Close()
}
