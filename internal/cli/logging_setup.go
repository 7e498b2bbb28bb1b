package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/cohort/internal/logging"
)

// setupLogging builds the command logger from configuration and flags, and attaches
// it, with a fresh trace ID, to the command context.
func setupLogging(cmd *cobra.Command, state *rootState) error {
	loggingCfg := state.cfg.Logging.ToLoggingConfig()

	if state.logLevel != "" {
		loggingCfg.Level = state.logLevel
	}
	if state.debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = logging.FormatConsole
		loggingCfg.Output = logging.OutputStderr
		loggingCfg.File = ""
	}

	result, err := logging.NewLogger(loggingCfg)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v; logging to stderr\n", err)
		loggingCfg.Output = logging.OutputStderr
		loggingCfg.File = ""
		if result, err = logging.NewLogger(loggingCfg); err != nil {
			return err
		}
	}
	state.logResult = result

	ctx := cmd.Context()
	traceID := logging.GetOrGenerateTraceID(ctx)
	state.logger = logging.ComponentLogger(result.Logger, "cli").With().Str("trace_id", traceID).Logger()

	ctx = logging.ContextWithTraceID(ctx, traceID)
	ctx = state.logger.WithContext(ctx)
	cmd.SetContext(ctx)

	state.logger.Debug().Str("command", cmd.Name()).Msg("command started")
	if result.UsingFile() {
		state.logger.Debug().Str("path", result.FilePath).Msg("logging to file")
	}
	if state.loadErr != nil {
		state.logger.Debug().Err(state.loadErr).Msg("configuration did not load")
	}
	return nil
}
