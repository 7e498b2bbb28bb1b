package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/rshade/cohort/internal/config"
	"github.com/rshade/cohort/internal/snapshot"
	"github.com/rshade/cohort/internal/source"
)

// openSource opens the configured record source. Postgres sources are wrapped in a
// snapshot cache when cache.enabled is set and useCache is true.
func openSource(
	ctx context.Context,
	cfg config.Config,
	stdin io.Reader,
	useCache bool,
	logger zerolog.Logger,
) (source.Source, error) {
	src, err := source.Open(ctx, cfg.Source.URI, source.Options{
		Table:          cfg.Source.Table,
		MaxConns:       cfg.Source.MaxConns,
		ConnectTimeout: cfg.Source.ConnectTimeout,
		Stdin:          stdin,
	})
	if err != nil {
		return nil, err
	}

	if !useCache || !cfg.Cache.Enabled || !source.IsPostgresURI(cfg.Source.URI) {
		return src, nil
	}

	dir, err := config.CacheDir(&cfg)
	if err == nil {
		var store *snapshot.Store
		if store, err = snapshot.NewStore(dir, cfg.Cache.TTL); err == nil {
			logger.Debug().Str("dir", store.Dir()).Dur("ttl", store.TTL()).Msg("record snapshots enabled")
			if removed, pruneErr := store.Prune(); pruneErr != nil {
				logger.Warn().Err(pruneErr).Msg("failed to prune record snapshots")
			} else if removed > 0 {
				logger.Debug().Int("removed", removed).Msg("pruned expired record snapshots")
			}
			return snapshot.Wrap(src, store, snapshot.Key(cfg.Source.URI, cfg.Source.Table)), nil
		}
	}
	logger.Warn().Err(err).Msg("record snapshots unavailable")
	return src, nil
}
