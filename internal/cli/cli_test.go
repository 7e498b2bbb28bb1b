package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/cohort/internal/config"
	"github.com/rshade/cohort/internal/engine"
	"github.com/rshade/cohort/internal/engine/batch"
	"github.com/rshade/cohort/internal/record"
	"github.com/rshade/cohort/internal/snapshot"
	"github.com/rshade/cohort/internal/source"
)

const patientsJSON = `[
  {"id": 1, "name": "Ann", "age": 10, "disease": "flu"},
  {"id": 2, "name": "Bob", "age": 20, "disease": "cold"},
  {"id": 3, "name": "Cid", "age": 30, "disease": "flu"},
  {"id": 4, "name": "Dee", "age": 40, "disease": "measles"},
  {"id": 5, "name": "Eve", "age": 50, "disease": "cold"}
]`

// isolate points every configuration lookup at an empty temporary directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("COHORT_HOME", home)
	t.Setenv("COHORT_CONFIG", "")
	t.Setenv("COHORT_PROJECT_DIR", filepath.Join(home, "project"))
	t.Setenv("COHORT_LOG_LEVEL", "error")
	return home
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAverage(t *testing.T) {
	isolate(t)
	path := writeFile(t, "patients.json", patientsJSON)

	t.Run("table output", func(t *testing.T) {
		out, err := runCLI(t, nil, "average", "--source", path, "--batch-size", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "MODE")
		assert.Contains(t, out, "parallel")
		assert.Contains(t, out, "30.00")
	})

	t.Run("json output with breakdown", func(t *testing.T) {
		out, err := runCLI(t, nil, "average", "-s", path, "-b", "2", "-m", "cooperative", "-o", "json", "--breakdown")
		require.NoError(t, err)

		var report averageReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		require.Len(t, report.Results, 1)
		s := report.Results[0]
		assert.Equal(t, engine.ModeCooperative, s.Mode)
		assert.InDelta(t, 30.0, s.Average, 1e-12)
		assert.Equal(t, 5, s.Records)
		assert.Equal(t, 3, s.BatchCount)
		require.Len(t, s.Batches, 3)
		assert.Equal(t, 1, s.Batches[2].Count)
	})

	t.Run("both modes agree", func(t *testing.T) {
		out, err := runCLI(t, nil, "average", "-s", path, "-b", "3", "--mode", "both", "-o", "yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "mode: parallel")
		assert.Contains(t, out, "mode: cooperative")
		assert.NotContains(t, out, "batches:")
	})

	t.Run("stdin source", func(t *testing.T) {
		out, err := runCLI(t, strings.NewReader(patientsJSON), "average", "-s", "-", "-o", "json")
		require.NoError(t, err)
		assert.Contains(t, out, `"average": 30`)
	})

	t.Run("alternate measure", func(t *testing.T) {
		out, err := runCLI(t, nil, "average", "-s", path, "--measure", "id", "-o", "json")
		require.NoError(t, err)
		assert.Contains(t, out, `"average": 3`)
	})
}

func TestAverageErrors(t *testing.T) {
	isolate(t)
	path := writeFile(t, "patients.json", patientsJSON)
	bad := writeFile(t, "bad.json", `[{"age": 10}, {"age": "old"}, {"name": "x"}]`)

	tests := []struct {
		name     string
		args     []string
		target   error
		exitCode int
	}{
		{"zero batch size", []string{"average", "-s", path, "-b", "0"}, engine.ErrInvalidBatchSize, ExitInvalidInput},
		{"negative batch size", []string{"average", "-s", path, "--batch-size=-3"}, engine.ErrInvalidBatchSize, ExitInvalidInput},
		{"unknown mode", []string{"average", "-s", path, "-m", "fibers"}, engine.ErrUnknownMode, ExitInvalidInput},
		{"no source", []string{"average"}, source.ErrNoSource, ExitFailure},
		{"bad measure values", []string{"average", "-s", bad, "-b", "1"}, engine.ErrReductionFailure, ExitReduction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, nil, tt.args...)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.exitCode, ExitCode(err))
		})
	}

	t.Run("reduction failure lists every failed batch", func(t *testing.T) {
		_, err := runCLI(t, nil, "average", "-s", bad, "-b", "1")
		var rerr *engine.ReductionError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, 3, rerr.TotalBatches)
		require.Len(t, rerr.Failures, 2)
		assert.Equal(t, 1, rerr.Failures[0].Index)
		assert.Equal(t, 2, rerr.Failures[1].Index)
	})
}

func TestAverageUsesConfigDefaults(t *testing.T) {
	isolate(t)
	path := writeFile(t, "patients.json", patientsJSON)
	cfgPath := writeFile(t, "config.yaml", "engine:\n  batch_size: 4\n  mode: cooperative\nsource:\n  uri: "+path+"\noutput:\n  format: json\n")

	out, err := runCLI(t, nil, "--config", cfgPath, "average")
	require.NoError(t, err)

	var report averageReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.ModeCooperative, report.Results[0].Mode)
	assert.Equal(t, 4, report.Results[0].BatchSize)
	assert.Equal(t, 2, report.Results[0].BatchCount)
}

func TestAverageFlagOverridesInvalidConfig(t *testing.T) {
	isolate(t)
	path := writeFile(t, "patients.json", patientsJSON)
	cfgPath := writeFile(t, "config.yaml", "engine:\n  batch_size: 0\n")

	_, err := runCLI(t, nil, "--config", cfgPath, "average", "-s", path)
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = runCLI(t, nil, "--config", cfgPath, "average", "-s", path, "-b", "2")
	require.NoError(t, err)
}

func TestConfigCommands(t *testing.T) {
	home := isolate(t)

	out, err := runCLI(t, nil, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(home, "config.yaml"))
	assert.FileExists(t, filepath.Join(home, "config.yaml"))

	_, err = runCLI(t, nil, "config", "init")
	require.ErrorIs(t, err, ErrConfigExists)

	_, err = runCLI(t, nil, "config", "init", "--force")
	require.NoError(t, err)

	out, err = runCLI(t, nil, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_size: 10")
	assert.Contains(t, out, "mode: parallel")

	out, err = runCLI(t, nil, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	bad := writeFile(t, "bad.yaml", "engine:\n  mode: threads-and-more\n")
	_, err = runCLI(t, nil, "--config", bad, "config", "validate")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, ExitInvalidInput, ExitCode(err))
}

func TestCacheCommands(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "snapshots")
	cfgPath := writeFile(t, "config.yaml", "cache:\n  dir: "+dir+"\n")

	store, err := snapshot.NewStore(dir, time.Hour)
	require.NoError(t, err)
	key := snapshot.Key("postgres://db/clinic", "patients")
	require.NoError(t, store.Put(key, []record.Record{{"age": 1}}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{"), 0o600))

	out, err := runCLI(t, nil, "--config", cfgPath, "cache", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 snapshot(s) from "+dir)

	_, err = store.Get(key)
	require.NoError(t, err)

	_, err = runCLI(t, nil, "--config", cfgPath, "cache", "clear")
	require.ErrorIs(t, err, source.ErrNoSource)

	out, err = runCLI(t, nil, "--config", cfgPath, "cache", "clear", "-s", "postgres://db/clinic", "--table", "patients")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared snapshot of postgres://db/clinic")

	_, err = store.Get(key)
	require.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestExecuteClosesLogOnFailure(t *testing.T) {
	isolate(t)
	logFile := filepath.Join(t.TempDir(), "cohort.log")
	cfgPath := writeFile(t, "config.yaml", "logging:\n  level: info\n  format: json\n  file: "+logFile+"\n")

	root, state := newRootCmd("test")
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", cfgPath, "average"})

	err := execute(root, state)
	require.ErrorIs(t, err, source.ErrNoSource)
	assert.Nil(t, state.logResult)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "command failed")
	assert.Contains(t, string(data), source.ErrNoSource.Error())
}

func TestDBRequiresDSN(t *testing.T) {
	isolate(t)
	_, err := runCLI(t, nil, "db", "migrate")
	require.ErrorIs(t, err, ErrNoDSN)
}

func TestCheckAgreement(t *testing.T) {
	same := []*engine.Summary{
		{Mode: engine.ModeParallel, Average: 1.5},
		{Mode: engine.ModeCooperative, Average: 1.5},
	}
	require.NoError(t, checkAgreement(same, 1.5))
	require.ErrorIs(t, checkAgreement(same, 1.7), ErrStrategiesDisagree)

	differ := []*engine.Summary{
		{Mode: engine.ModeParallel, Average: 1.5},
		{Mode: engine.ModeCooperative, Average: 1.6},
	}
	require.ErrorIs(t, checkAgreement(differ, 1.5), ErrStrategiesDisagree)
}

func TestProgressLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)
	callback := progressLogger(logger)

	p := batch.NewProgress(3, 2)
	p.AddProcessed(2)
	callback(p)
	assert.Contains(t, buf.String(), `"message":"batch resolved"`)
	assert.NotContains(t, buf.String(), "all batches resolved")

	buf.Reset()
	p.AddProcessed(1)
	callback(p)
	assert.Contains(t, buf.String(), `"message":"all batches resolved"`)
	assert.Contains(t, buf.String(), `"records_per_second"`)
}

func TestRenderPlainBreakdown(t *testing.T) {
	report := averageReport{
		Measure: "age",
		Results: []*engine.Summary{{
			Mode: engine.ModeParallel, Average: 2, Records: 3, BatchSize: 2, BatchCount: 2,
			Batches: []engine.BatchResult{
				{Index: 0, Count: 2, Sum: 3, Mean: 1.5},
				{Index: 1, Count: 1, Sum: 3, Mean: 3},
			},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, config.FormatTable, 1, report))
	out := buf.String()
	assert.Contains(t, out, "parallel breakdown")
	assert.Contains(t, out, "BATCH")
	assert.Contains(t, out, "1.5")
	assert.False(t, isWriterTerminal(&buf))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitInvalidInput, ExitCode(engine.ErrInvalidBatchSize))
	assert.Equal(t, ExitInvalidInput, ExitCode(engine.ErrUnknownMode))
	assert.Equal(t, ExitReduction, ExitCode(&engine.ReductionError{TotalBatches: 1}))
	assert.Equal(t, ExitFailure, ExitCode(source.ErrNoSource))
}
