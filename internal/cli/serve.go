package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rshade/cohort/internal/api"
	"github.com/rshade/cohort/internal/engine"
	"github.com/rshade/cohort/internal/source"
)

func newServeCmd(state *rootState) *cobra.Command {
	var (
		addr      string
		sourceURI string
		table     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve average computations over HTTP",
		Long: `Start an HTTP server exposing GET /healthz, GET /patients/average (over the
configured record source) and POST /average (over records in the request body).
The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := state.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("source") {
				cfg.Source.URI = sourceURI
			}
			if cmd.Flags().Changed("table") {
				cfg.Source.Table = table
			}

			mode, err := engine.ParseMode(cfg.Engine.Mode)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var src source.Source
			if cfg.Source.URI != "" {
				src, err = openSource(ctx, *cfg, nil, true, state.logger)
				if err != nil {
					return err
				}
				defer func() {
					if closeErr := src.Close(); closeErr != nil {
						state.logger.Warn().Err(closeErr).Msg("closing record source")
					}
				}()
			} else {
				state.logger.Warn().Msg("no record source configured; GET /patients/average will return 503")
			}

			server := api.NewServer(src, api.Config{
				BatchSize: cfg.Engine.BatchSize,
				Mode:      mode,
				Measure:   cfg.Engine.Measure,
				Engine: engine.Options{
					Workers:     cfg.Engine.Workers,
					MaxInFlight: cfg.Engine.MaxInFlight,
				},
			}, state.logResult.Logger)

			return server.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVarP(&sourceURI, "source", "s", "", "record source for GET /patients/average")
	cmd.Flags().StringVar(&table, "table", "", "Postgres table to read (default patients)")

	return cmd
}
