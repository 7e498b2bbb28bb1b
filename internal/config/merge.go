package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyEngine  = "engine"
	keySource  = "source"
	keyLogging = "logging"
	keyServer  = "server"
	keyOutput  = "output"
	keyCache   = "cache"
)

// knownTopLevelKeys lists the YAML keys that correspond to Config sections.
// Keys not in this list are ignored during merge.
//
//nolint:gochecknoglobals // Compile-time constant lookup table.
var knownTopLevelKeys = map[string]bool{
	keyEngine:  true,
	keySource:  true,
	keyLogging: true,
	keyServer:  true,
	keyOutput:  true,
	keyCache:   true,
}

// ShallowMergeYAML loads a YAML file and merges its top-level sections onto target.
// A section present in the overlay replaces the whole target section; fields the
// overlay section omits take their built-in defaults, not the target's values.
// Sections absent from the overlay are left unchanged.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]any
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	// Empty or comment-only file: nothing to merge.
	if len(overlay) == 0 {
		return nil
	}

	for key, value := range overlay {
		if !knownTopLevelKeys[key] {
			continue
		}

		// Re-marshal the single section so it can be decoded onto the typed field.
		sectionBytes, marshalErr := yaml.Marshal(value)
		if marshalErr != nil {
			return fmt.Errorf("re-marshalling overlay section %q: %w", key, marshalErr)
		}

		if err = unmarshalSection(target, key, sectionBytes); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// unmarshalSection decodes data onto a default-valued copy of the section named by
// key and stores it in target.
func unmarshalSection(target *Config, key string, data []byte) error {
	defaults := New()

	switch key {
	case keyEngine:
		v := defaults.Engine
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Engine = v
	case keySource:
		v := defaults.Source
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Source = v
	case keyLogging:
		v := defaults.Logging
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Logging = v
	case keyServer:
		v := defaults.Server
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Server = v
	case keyOutput:
		v := defaults.Output
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Output = v
	case keyCache:
		v := defaults.Cache
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Cache = v
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
