package cli

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/cohort/internal/config"
	"github.com/rshade/cohort/internal/engine"
	"github.com/rshade/cohort/internal/engine/batch"
	"github.com/rshade/cohort/internal/record"
)

// modeBoth runs every strategy and cross-checks the results.
const modeBoth = "both"

// ErrStrategiesDisagree is returned by --mode both when the strategies' results differ
// from each other or from the unbatched mean.
var ErrStrategiesDisagree = errors.New("parallel and cooperative results disagree")

type averageFlags struct {
	source      string
	table       string
	batchSize   int
	mode        string
	measure     string
	workers     int
	maxInFlight int
	output      string
	breakdown   bool
	noCache     bool
}

func newAverageCmd(state *rootState) *cobra.Command {
	var flags averageFlags

	cmd := &cobra.Command{
		Use:   "average",
		Short: "Compute the record-weighted average of a measure",
		Long: `Load every record from a source, split the records into fixed-size batches,
reduce the batches concurrently and print the record-weighted mean of the measure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := state.unvalidated()
			if err != nil {
				return err
			}
			return runAverage(cmd, state.logger, applyAverageFlags(cmd, *cfg, flags), flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.source, "source", "s", "",
		"record source: file path (.json, .yaml), - for stdin JSON, or postgres:// URI")
	f.StringVar(&flags.table, "table", "", "Postgres table to read (default patients)")
	f.IntVarP(&flags.batchSize, "batch-size", "b", batch.DefaultBatchSize, "records per batch")
	f.StringVarP(&flags.mode, "mode", "m", string(engine.ModeParallel), "execution mode: parallel, cooperative or both")
	f.StringVar(&flags.measure, "measure", record.DefaultMeasure, "numeric field to average")
	f.IntVar(&flags.workers, "workers", 0, "parallel worker limit (0 = number of CPUs)")
	f.IntVar(&flags.maxInFlight, "max-in-flight", engine.DefaultMaxInFlight, "cooperative run queue bound")
	f.StringVarP(&flags.output, "output", "o", config.FormatTable, "output format: table, json or yaml")
	f.BoolVar(&flags.breakdown, "breakdown", false, "include the per-batch breakdown")
	f.BoolVar(&flags.noCache, "no-cache", false, "bypass the record snapshot cache")

	return cmd
}

// applyAverageFlags overlays explicitly set flags onto a copy of the configuration.
func applyAverageFlags(cmd *cobra.Command, cfg config.Config, flags averageFlags) config.Config {
	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.Source.URI = flags.source
	}
	if changed("table") {
		cfg.Source.Table = flags.table
	}
	if changed("batch-size") {
		cfg.Engine.BatchSize = flags.batchSize
	}
	if changed("mode") && !strings.EqualFold(flags.mode, modeBoth) {
		cfg.Engine.Mode = flags.mode
	}
	if changed("measure") {
		cfg.Engine.Measure = flags.measure
	}
	if changed("workers") {
		cfg.Engine.Workers = flags.workers
	}
	if changed("max-in-flight") {
		cfg.Engine.MaxInFlight = flags.maxInFlight
	}
	if changed("output") {
		cfg.Output.Format = flags.output
	}
	return cfg
}

func runAverage(cmd *cobra.Command, logger zerolog.Logger, cfg config.Config, flags averageFlags) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	modes, err := selectModes(cmd, cfg, flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	src, err := openSource(ctx, cfg, cmd.InOrStdin(), !flags.noCache, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("closing record source")
		}
	}()

	records, err := src.Load(ctx)
	if err != nil {
		return err
	}
	logger.Debug().Int("records", len(records)).Str("source", cfg.Source.URI).Msg("records loaded")

	measure, err := record.Field(cfg.Engine.Measure)
	if err != nil {
		return err
	}
	eng, err := engine.New[record.Record](measure, engine.Options{
		Workers:     cfg.Engine.Workers,
		MaxInFlight: cfg.Engine.MaxInFlight,
	})
	if err != nil {
		return err
	}
	eng.WithLogger(logger).WithProgressCallback(progressLogger(logger))

	report := averageReport{
		Source:  cfg.Source.URI,
		Measure: cfg.Engine.Measure,
	}
	for _, mode := range modes {
		summary, sumErr := eng.Summarize(ctx, mode, records, cfg.Engine.BatchSize)
		if sumErr != nil {
			return sumErr
		}
		if !flags.breakdown {
			summary.Batches = nil
		}
		report.Results = append(report.Results, summary)
	}

	if err = renderReport(cmd.OutOrStdout(), cfg.Output.Format, cfg.Output.Precision, report); err != nil {
		return err
	}
	if len(report.Results) < 2 {
		return nil
	}

	reference, err := engine.Mean[record.Record](records, measure)
	if err != nil {
		return err
	}
	return checkAgreement(report.Results, reference)
}

// progressLogger traces each resolved batch and logs throughput once all have resolved.
func progressLogger(logger zerolog.Logger) batch.ProgressCallback {
	return func(p *batch.Progress) {
		if !p.IsComplete() {
			logger.Trace().Float64("percent", p.PercentComplete()).Msg("batch resolved")
			return
		}
		logger.Debug().
			Dur("elapsed", p.ElapsedTime()).
			Float64("records_per_second", p.ItemsPerSecond()).
			Msg("all batches resolved")
	}
}

func selectModes(cmd *cobra.Command, cfg config.Config, flags averageFlags) ([]engine.Mode, error) {
	if cmd.Flags().Changed("mode") && strings.EqualFold(flags.mode, modeBoth) {
		return engine.Modes(), nil
	}
	mode, err := engine.ParseMode(cfg.Engine.Mode)
	if err != nil {
		return nil, err
	}
	return []engine.Mode{mode}, nil
}

// referenceTolerance bounds the relative difference between a batched average and
// the unbatched reference mean.
const referenceTolerance = 1e-9

// checkAgreement requires every summary to report the same average, and that
// average to match the unbatched reference within referenceTolerance.
func checkAgreement(results []*engine.Summary, reference float64) error {
	first := results[0]
	for _, s := range results[1:] {
		if s.Average != first.Average {
			return fmt.Errorf("%w: %s=%v %s=%v", ErrStrategiesDisagree,
				first.Mode, first.Average, s.Mode, s.Average)
		}
	}
	if math.Abs(first.Average-reference) > referenceTolerance*math.Max(1, math.Abs(reference)) {
		return fmt.Errorf("%w: batched=%v reference=%v", ErrStrategiesDisagree, first.Average, reference)
	}
	return nil
}
