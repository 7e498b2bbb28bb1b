// Package logging builds the zerolog loggers used across cohort and carries
// per-invocation trace IDs through contexts.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output and format names accepted in Config.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	OutputStderr  = "stderr"
	OutputStdout  = "stdout"
	OutputFile    = "file"
)

// ErrNoLogFile is returned when file output is requested without a path.
var ErrNoLogFile = errors.New("log output is \"file\" but no file path is configured")

// Config selects the level, encoding and destination of a logger.
type Config struct {
	Level  string
	Format string
	Output string
	File   string
	Caller bool
}

// Result is a constructed logger plus the file handle backing it, if any.
type Result struct {
	Logger   zerolog.Logger
	FilePath string
	file     *os.File
}

// UsingFile reports whether the logger writes to a file.
func (r *Result) UsingFile() bool {
	return r.file != nil
}

// Close releases the log file, if one was opened.
func (r *Result) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ParseLevel parses level, falling back to info for empty or unknown names.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewLogger builds a logger for cfg. Console format writes human-readable RFC3339
// lines; JSON format writes one object per event.
func NewLogger(cfg Config) (*Result, error) {
	result := &Result{}

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", OutputStderr:
		out = os.Stderr
	case OutputStdout:
		out = os.Stdout
	case OutputFile:
		if cfg.File == "" {
			return nil, ErrNoLogFile
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		result.file = f
		result.FilePath = cfg.File
		out = f
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	result.Logger = New(out, cfg)
	return result, nil
}

// New builds a logger that writes to w using cfg's level, format and caller settings.
// File and Output are ignored.
func New(w io.Writer, cfg Config) zerolog.Logger {
	if !strings.EqualFold(cfg.Format, FormatJSON) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ComponentLogger returns a child logger tagged with the component name.
func ComponentLogger(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
