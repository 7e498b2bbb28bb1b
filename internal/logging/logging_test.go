package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := ComponentLogger(New(&buf, Config{Level: "debug", Format: FormatJSON}), "engine")

	logger.Debug().Int("batches", 3).Msg("done")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "debug", event["level"])
	assert.Equal(t, "engine", event["component"])
	assert.Equal(t, "done", event["message"])
	assert.EqualValues(t, 3, event["batches"])
	assert.Contains(t, event, "time")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn", Format: FormatJSON})

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info"})
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "INF")
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cohort.log")

	result, err := NewLogger(Config{Level: "info", Format: FormatJSON, Output: OutputFile, File: path})
	require.NoError(t, err)
	assert.True(t, result.UsingFile())
	assert.Equal(t, path, result.FilePath)

	result.Logger.Info().Msg("to file")
	require.NoError(t, result.Close())
	require.NoError(t, result.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := NewLogger(Config{Output: OutputFile})
	assert.ErrorIs(t, err, ErrNoLogFile)

	_, err = NewLogger(Config{Output: "syslog"})
	assert.Error(t, err)

	result, err := NewLogger(Config{})
	require.NoError(t, err)
	assert.False(t, result.UsingFile())
	assert.NoError(t, result.Close())
}

func TestTraceID(t *testing.T) {
	id := NewTraceID()
	_, err := ulid.Parse(id)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Empty(t, TraceIDFromContext(ctx))
	assert.NotEmpty(t, GetOrGenerateTraceID(ctx))

	ctx = ContextWithTraceID(ctx, id)
	assert.Equal(t, id, TraceIDFromContext(ctx))
	assert.Equal(t, id, GetOrGenerateTraceID(ctx))
}
