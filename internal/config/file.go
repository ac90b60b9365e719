package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk shape of a sampling configuration. Fields are
// pointers so an absent key keeps its default; durations are strings so
// "45s" style values parse.
type fileSchema struct {
	Rate               *int    `yaml:"rate"`
	Format             *string `yaml:"format"`
	IncludeIdle        *bool   `yaml:"include_idle"`
	LockOnly           *bool   `yaml:"lock_only"`
	IncludeThreadIDs   *bool   `yaml:"include_thread_ids"`
	IncludeProcessInfo *bool   `yaml:"include_process_info"`
	Duration           *string `yaml:"duration"`
}

// LoadFile reads a sampling configuration from a YAML file, applying defaults
// for fields the file leaves unset.
func LoadFile(path string) (Sampling, error) {
	cfg := Default()

	//nolint:gosec // G304: config path is chosen by the embedding caller.
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw fileSchema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if raw.Rate != nil {
		cfg.Rate = *raw.Rate
	}
	if raw.Format != nil {
		cfg.Format = Format(*raw.Format)
	}
	if raw.IncludeIdle != nil {
		cfg.IncludeIdle = *raw.IncludeIdle
	}
	if raw.LockOnly != nil {
		cfg.LockOnly = *raw.LockOnly
	}
	if raw.IncludeThreadIDs != nil {
		cfg.IncludeThreadIDs = *raw.IncludeThreadIDs
	}
	if raw.IncludeProcessInfo != nil {
		cfg.IncludeProcessInfo = *raw.IncludeProcessInfo
	}
	if raw.Duration != nil {
		d, err := time.ParseDuration(*raw.Duration)
		if err != nil {
			return cfg, fmt.Errorf("invalid config file %s: bad duration %q: %w", path, *raw.Duration, err)
		}
		cfg.Duration = d
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}
