// Package config loads loglens's runtime configuration from a YAML file
// with an environment-variable overlay, following the struct-tag +
// default pattern the rest of this lineage uses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Tail   TailConfig   `yaml:"tail"`
	Watch  WatchConfig  `yaml:"watch"`
}

// ServerConfig controls the ambient HTTP ops surface.
type ServerConfig struct {
	Port     int    `yaml:"port" default:"8080"`
	LogLevel string `yaml:"log_level" default:"info"`
}

// TailConfig controls the Tail Reader / backfill behavior.
type TailConfig struct {
	// BackfillLines is the number of lines delivered to a newly attached
	// subscriber. Spec default is 10.
	BackfillLines int `yaml:"backfill_lines" default:"10"`
}

// WatchConfig controls the File Watcher.
type WatchConfig struct {
	// Mode is "native" (fsnotify, default) or "poll".
	Mode string `yaml:"mode" default:"native"`
	// PollInterval is used only when Mode is "poll".
	PollInterval time.Duration `yaml:"poll_interval" default:"2s"`
}

// Default returns a Config populated with every `default:"..."` tag
// value, as if loaded from an empty file.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info"},
		Tail:   TailConfig{BackfillLines: 10},
		Watch:  WatchConfig{Mode: "native", PollInterval: 2 * time.Second},
	}
}

// Load reads path as YAML into a Default() config, then applies the
// LOGLENS_* environment overlay. A missing file is not an error: the
// defaults (plus env overlay) are returned as-is, since the core takes
// no required configuration (spec §6).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			LoadFromEnv(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	LoadFromEnv(&cfg)
	return cfg, nil
}
