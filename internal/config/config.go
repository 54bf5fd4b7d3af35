// Package config loads the prealloc serve configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "1m30s" in every file format.
type Duration time.Duration

// UnmarshalText parses a time.ParseDuration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d as a time.Duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the parameters of `prealloc serve`.
// Zero values mean "unspecified" and are replaced by library defaults.
type Config struct {
	Listen    string `json:"listen" yaml:"listen" toml:"listen"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`

	Pool   PoolConfig   `json:"pool" yaml:"pool" toml:"pool"`
	Worker WorkerConfig `json:"worker" yaml:"worker" toml:"worker"`
}

// PoolConfig mirrors the manager options.
type PoolConfig struct {
	Size                 int      `json:"size" yaml:"size" toml:"size"`
	AcquireTimeout       Duration `json:"acquire_timeout" yaml:"acquire_timeout" toml:"acquire_timeout"`
	WarmTimeout          Duration `json:"warm_timeout" yaml:"warm_timeout" toml:"warm_timeout"`
	StopTimeout          Duration `json:"stop_timeout" yaml:"stop_timeout" toml:"stop_timeout"`
	ShutdownDrainTimeout Duration `json:"shutdown_drain_timeout" yaml:"shutdown_drain_timeout" toml:"shutdown_drain_timeout"`
	BackoffInitial       Duration `json:"backoff_initial" yaml:"backoff_initial" toml:"backoff_initial"`
	BackoffMax           Duration `json:"backoff_max" yaml:"backoff_max" toml:"backoff_max"`
	BaseDataDir          string   `json:"base_data_dir" yaml:"base_data_dir" toml:"base_data_dir"`
	ProfileDir           string   `json:"profile_dir" yaml:"profile_dir" toml:"profile_dir"`
}

// WorkerConfig selects how workers are started.
type WorkerConfig struct {
	// Binary defaults to the running executable.
	Binary string   `json:"binary" yaml:"binary" toml:"binary"`
	Args   []string `json:"args" yaml:"args" toml:"args"`
	Env    []string `json:"env" yaml:"env" toml:"env"`
	// InProcess warms slots inside the serve process.
	InProcess bool `json:"in_process" yaml:"in_process" toml:"in_process"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that would make a manager option panic.
func (c Config) Validate() error {
	var errs []error
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if c.Pool.Size < 0 {
		errs = append(errs, fmt.Errorf("pool.size must not be negative, got %d", c.Pool.Size))
	}
	durations := map[string]Duration{
		"pool.acquire_timeout":        c.Pool.AcquireTimeout,
		"pool.warm_timeout":           c.Pool.WarmTimeout,
		"pool.stop_timeout":           c.Pool.StopTimeout,
		"pool.shutdown_drain_timeout": c.Pool.ShutdownDrainTimeout,
		"pool.backoff_initial":        c.Pool.BackoffInitial,
		"pool.backoff_max":            c.Pool.BackoffMax,
	}
	for name, d := range durations {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d.Std()))
		}
	}
	if (c.Pool.BackoffInitial == 0) != (c.Pool.BackoffMax == 0) {
		errs = append(errs, errors.New("pool.backoff_initial and pool.backoff_max must be set together"))
	}
	if c.Pool.BackoffMax > 0 && c.Pool.BackoffMax < c.Pool.BackoffInitial {
		errs = append(errs, errors.New("pool.backoff_max must not be below pool.backoff_initial"))
	}
	return errors.Join(errs...)
}
