package cli

import (
	"github.com/spf13/cobra"

	"github.com/rshade/cohort/internal/config"
	"github.com/rshade/cohort/internal/snapshot"
	"github.com/rshade/cohort/internal/source"
)

func newCacheCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage record snapshots of Postgres sources",
	}

	cmd.AddCommand(
		newCachePruneCmd(state),
		newCacheClearCmd(state),
	)
	return cmd
}

func newCachePruneCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired and unreadable snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(state)
			if err != nil {
				return err
			}
			removed, err := store.Prune()
			if err != nil {
				return err
			}
			state.logger.Debug().Int("removed", removed).Str("dir", store.Dir()).Msg("snapshots pruned")
			cmd.Printf("Removed %d snapshot(s) from %s\n", removed, store.Dir())
			return nil
		},
	}
}

func newCacheClearCmd(state *rootState) *cobra.Command {
	var uri, table string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the snapshot of one source",
		Long: `Removes the snapshot of the source given by --source and --table, falling back to
source.uri and source.table from configuration.`,
		Example: `  cohort cache clear --source postgres://localhost/clinic --table patients`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := state.unvalidated()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("source") {
				uri = cfg.Source.URI
			}
			if !cmd.Flags().Changed("table") {
				table = cfg.Source.Table
			}
			if uri == "" {
				return source.ErrNoSource
			}

			store, err := openStore(state)
			if err != nil {
				return err
			}
			if err = store.Delete(snapshot.Key(uri, table)); err != nil {
				return err
			}
			cmd.Printf("Cleared snapshot of %s (%s) in %s\n", uri, table, store.Dir())
			return nil
		},
	}

	cmd.Flags().StringVarP(&uri, "source", "s", "", "source URI whose snapshot to remove")
	cmd.Flags().StringVar(&table, "table", "", "source table")
	return cmd
}

func openStore(state *rootState) (*snapshot.Store, error) {
	cfg, err := state.unvalidated()
	if err != nil {
		return nil, err
	}
	dir, err := config.CacheDir(cfg)
	if err != nil {
		return nil, err
	}
	return snapshot.NewStore(dir, cfg.Cache.TTL)
}
