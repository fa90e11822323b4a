package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "SUBBOX_"

// AdjustConfig fills unset fields with defaults.
func (cfg *Config) AdjustConfig() {
	if cfg.Cache.EvictionThreshold == 0 {
		cfg.Cache.EvictionThreshold = DefaultEvictionThreshold
	}
	if cfg.Cache.UpdatePeriod == 0 {
		cfg.Cache.UpdatePeriod = DefaultUpdatePeriod
	}
	if cfg.Pool.Size == 0 {
		cfg.Pool.Size = DefaultPoolSize
	}
	if cfg.Pool.IdleTimeout == 0 {
		cfg.Pool.IdleTimeout = DefaultPoolIdleTimeout
	}
	if cfg.Resolution.TTL == 0 {
		cfg.Resolution.TTL = DefaultResolutionTTL
	}
	if cfg.Resolution.Capacity == 0 {
		cfg.Resolution.Capacity = DefaultResolutionCap
	}
	if cfg.Source.BatchConcurrency == 0 {
		cfg.Source.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format == "" {
		cfg.Log.Format = LogFormatJSON
	}
	if cfg.Telemetry.Tracing.Enabled() && cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultServiceName
	}
}

// Validate reports every invalid field at once.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Cache.EvictionThreshold < 0 {
		errs = append(errs, errors.New("cache.eviction_threshold must not be negative"))
	}
	if cfg.Cache.UpdatePeriod < 0 {
		errs = append(errs, errors.New("cache.update_period must not be negative"))
	}
	if cfg.Pool.Size < 0 {
		errs = append(errs, errors.New("pool.size must not be negative"))
	}
	if cfg.Pool.IdleTimeout < 0 {
		errs = append(errs, errors.New("pool.idle_timeout must not be negative"))
	}
	if cfg.Resolution.TTL < 0 {
		errs = append(errs, errors.New("resolution.ttl must not be negative"))
	}
	if cfg.Resolution.Capacity < 0 {
		errs = append(errs, errors.New("resolution.capacity must not be negative"))
	}
	if cfg.Source.VideosPerPlaylist < 0 {
		errs = append(errs, errors.New("source.videos_per_playlist must not be negative"))
	}
	if cfg.Source.RequestsPerSec < 0 {
		errs = append(errs, errors.New("source.requests_per_sec must not be negative"))
	}
	if cfg.Source.BatchConcurrency < 0 {
		errs = append(errs, errors.New("source.batch_concurrency must not be negative"))
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Log.Format != LogFormatJSON && cfg.Log.Format != LogFormatConsole {
		errs = append(errs, fmt.Errorf("log.format %q: want %s or %s", cfg.Log.Format, LogFormatJSON, LogFormatConsole))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", level, err)
	}
	return l, nil
}

// LoadConfig reads the YAML file at path, overlays SUBBOX_* environment
// variables, fills defaults and validates the result. An empty path skips
// the file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.AdjustConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
