package cli

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/cohort/internal/config"
	"github.com/rshade/cohort/internal/engine"
	"github.com/rshade/cohort/internal/logging"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitReduction    = 3
)

// rootState is shared by every subcommand of one root command instance.
type rootState struct {
	configPath string
	debug      bool
	logLevel   string

	cfg         *config.Config
	loadErr     error
	validateErr error
	logResult   *logging.Result
	logger      zerolog.Logger
}

// config returns the resolved, valid configuration.
func (s *rootState) config() (*config.Config, error) {
	cfg, err := s.unvalidated()
	if err != nil {
		return nil, err
	}
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return cfg, nil
}

// closeLog closes the log output once; the logger is reset to a no-op.
func (s *rootState) closeLog() error {
	if s.logResult == nil {
		return nil
	}
	err := s.logResult.Close()
	s.logResult = nil
	s.logger = zerolog.Nop()
	return err
}

// unvalidated returns the resolved configuration before validation, for commands
// that overlay flags and validate the result themselves.
func (s *rootState) unvalidated() (*config.Config, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.cfg, nil
}

// NewRootCmd creates the root Cobra command for the cohort CLI.
// It wires configuration loading, logging and the average, serve, db and config
// subcommands.
func NewRootCmd(ver string) *cobra.Command {
	cmd, _ := newRootCmd(ver)
	return cmd
}

// Execute runs the cohort CLI with the process arguments. The log file, if any, is
// closed whether or not the command succeeds.
func Execute(ver string) error {
	return execute(newRootCmd(ver))
}

func execute(cmd *cobra.Command, state *rootState) error {
	err := cmd.Execute()
	if err != nil {
		state.logger.Error().Err(err).Int("exit_code", ExitCode(err)).Msg("command failed")
	}
	if closeErr := state.closeLog(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(ver string) (*cobra.Command, *rootState) {
	state := &rootState{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "cohort",
		Short:         "Batch-parallel record aggregation",
		Long:          "cohort: compute record-weighted averages over batched collections, in parallel or cooperatively",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(state.configPath)
			switch {
			case cfg == nil:
				state.cfg, state.loadErr = config.New(), err
			default:
				state.cfg, state.validateErr = cfg, err
			}
			return setupLogging(cmd, state)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return state.closeLog()
		},
	}

	cmd.PersistentFlags().StringVar(&state.configPath, "config", "",
		"config file (default $COHORT_HOME/config.yaml or ~/.cohort/config.yaml)")
	cmd.PersistentFlags().BoolVar(&state.debug, "debug", false, "enable debug logging to stderr")
	cmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newAverageCmd(state),
		newServeCmd(state),
		newDBCmd(state),
		newConfigCmd(state),
		newCacheCmd(state),
	)

	return cmd, state
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, engine.ErrInvalidBatchSize),
		errors.Is(err, engine.ErrUnknownMode),
		errors.Is(err, config.ErrInvalidConfig):
		return ExitInvalidInput
	case errors.Is(err, engine.ErrReductionFailure):
		return ExitReduction
	default:
		return ExitFailure
	}
}

const rootCmdExample = `  # Average patient age from a JSON export, 10 records per batch
  cohort average --source patients.json

  # Same computation on the cooperative scheduler, with a per-batch breakdown
  cohort average --source patients.yaml --mode cooperative --breakdown

  # Run both strategies and check they agree
  cohort average --source postgres://localhost/hms --mode both -o json

  # Serve averages over HTTP
  cohort serve --source postgres://localhost/hms --addr :8080

  # Create the patients table
  cohort db migrate --dsn postgres://localhost/hms

  # Write a default configuration file
  cohort config init`
