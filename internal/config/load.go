package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// configFileName is the file name used in both the global and project directories.
const configFileName = "config.yaml"

// projectDirName is the per-project configuration directory.
const projectDirName = ".cohort"

// Load resolves the layered configuration. explicitPath, when non-empty, must exist;
// the implicit global and project files are optional.
func Load(explicitPath string) (*Config, error) {
	cfg := New()

	path, required, err := globalPath(explicitPath)
	if err != nil {
		return nil, err
	}
	if err = mergeFile(cfg, path, required); err != nil {
		return nil, err
	}

	if projectDir := ProjectDir(); projectDir != "" {
		if err = mergeFile(cfg, filepath.Join(projectDir, configFileName), false); err != nil {
			return nil, err
		}
	}

	if err = ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func globalPath(explicitPath string) (string, bool, error) {
	if explicitPath != "" {
		return explicitPath, true, nil
	}
	if env := os.Getenv("COHORT_CONFIG"); env != "" {
		return env, true, nil
	}
	path, err := DefaultPath()
	return path, false, err
}

func mergeFile(cfg *Config, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return ShallowMergeYAML(cfg, path)
}

// ApplyEnv overlays COHORT_* environment variables onto cfg.
func ApplyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	strVars := map[string]*string{
		"COHORT_MODE":       &cfg.Engine.Mode,
		"COHORT_MEASURE":    &cfg.Engine.Measure,
		"COHORT_SOURCE":     &cfg.Source.URI,
		"COHORT_TABLE":      &cfg.Source.Table,
		"COHORT_LOG_LEVEL":  &cfg.Logging.Level,
		"COHORT_LOG_FORMAT": &cfg.Logging.Format,
		"COHORT_LOG_FILE":   &cfg.Logging.File,
		"COHORT_ADDR":       &cfg.Server.Addr,
		"COHORT_OUTPUT":     &cfg.Output.Format,
	}
	for name, dst := range strVars {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"COHORT_BATCH_SIZE":    &cfg.Engine.BatchSize,
		"COHORT_WORKERS":       &cfg.Engine.Workers,
		"COHORT_MAX_IN_FLIGHT": &cfg.Engine.MaxInFlight,
	}
	for name, dst := range intVars {
		v, ok := lookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v)
		}
		*dst = n
	}

	if v, ok := lookupEnv("COHORT_CACHE"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: COHORT_CACHE=%q is not a boolean", ErrInvalidConfig, v)
		}
		cfg.Cache.Enabled = enabled
	}

	return nil
}

// Dir returns the global configuration directory: $COHORT_HOME, or ~/.cohort.
func Dir() (string, error) {
	if home := os.Getenv("COHORT_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, projectDirName), nil
}

// CacheDir returns the snapshot directory: cache.dir, or the cache subdirectory of Dir.
func CacheDir(cfg *Config) (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache"), nil
}

// DefaultPath returns the global configuration file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// ProjectDir returns the project overlay directory: $COHORT_PROJECT_DIR/.cohort, or
// ./.cohort when it exists. It returns "" when neither applies.
func ProjectDir() string {
	if envDir := os.Getenv("COHORT_PROJECT_DIR"); envDir != "" {
		if filepath.Base(envDir) == projectDirName {
			return envDir
		}
		return filepath.Join(envDir, projectDirName)
	}
	if info, err := os.Stat(projectDirName); err == nil && info.IsDir() {
		abs, absErr := filepath.Abs(projectDirName)
		if absErr != nil {
			return projectDirName
		}
		return abs
	}
	return ""
}
