package config

import "time"

// Config is the root configuration of the service.
type Config struct {
	Cache      CacheCfg      `yaml:"cache" envPrefix:"CACHE_"`
	Pool       PoolCfg       `yaml:"pool" envPrefix:"POOL_"`
	Resolution ResolutionCfg `yaml:"resolution" envPrefix:"RESOLUTION_"`
	Source     SourceCfg     `yaml:"source" envPrefix:"SOURCE_"`
	HTTP       HTTPCfg       `yaml:"http" envPrefix:"HTTP_"`
	Log        LogCfg        `yaml:"log" envPrefix:"LOG_"`
	Telemetry  TelemetryCfg  `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// CacheCfg configures the refresh engine.
type CacheCfg struct {
	// EvictionThreshold is how long a playlist may go without being requested
	// before the reconciliation pass forgets it.
	EvictionThreshold time.Duration `yaml:"eviction_threshold" env:"EVICTION_THRESHOLD"`

	// UpdatePeriod is the interval between reconciliation passes.
	UpdatePeriod time.Duration `yaml:"update_period" env:"UPDATE_PERIOD"`

	// RefreshDisabled turns the background reconciliation off. Entries are then
	// loaded once and never refreshed or evicted.
	RefreshDisabled bool `yaml:"refresh_disabled" env:"REFRESH_DISABLED"`
}

// PoolCfg configures the bounded load pool.
type PoolCfg struct {
	Size        int           `yaml:"size" env:"SIZE"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// ResolutionCfg configures the channel -> uploads playlist cache.
type ResolutionCfg struct {
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	Capacity int           `yaml:"capacity" env:"CAPACITY"`
	// CacheMisses remembers channels the upstream does not know for TTL.
	CacheMisses bool `yaml:"cache_misses" env:"CACHE_MISSES"`
}

// SourceCfg configures the upstream client.
type SourceCfg struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	AppName string `yaml:"app_name" env:"APP_NAME"`

	// VideosPerPlaylist caps how many videos are loaded per playlist. 0 means all.
	VideosPerPlaylist int `yaml:"videos_per_playlist" env:"VIDEOS_PER_PLAYLIST"`

	// RequestsPerSec paces outgoing requests. 0 means unpaced.
	RequestsPerSec int `yaml:"requests_per_sec" env:"REQUESTS_PER_SEC"`

	// BatchConcurrency bounds how many chunks of one batched call run at once.
	BatchConcurrency int `yaml:"batch_concurrency" env:"BATCH_CONCURRENCY"`
}

type HTTPCfg struct {
	Addr        string   `yaml:"addr" env:"ADDR"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

type LogCfg struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryCfg groups stat logs and tracing.
type TelemetryCfg struct {
	// StatLogsInterval is the period of counter summaries in logs. 0 disables them.
	StatLogsInterval time.Duration `yaml:"stat_logs_interval" env:"STAT_LOGS_INTERVAL"`

	// Tracing exports spans over OTLP/HTTP. If nil, tracing is disabled.
	Tracing *TracingCfg `yaml:"tracing"`
}

type TracingCfg struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

func (cfg *TracingCfg) Enabled() bool {
	return cfg != nil && cfg.Endpoint != ""
}

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Default values applied by AdjustConfig to unset fields.
const (
	DefaultEvictionThreshold = time.Hour
	DefaultUpdatePeriod      = 5 * time.Minute
	DefaultPoolSize          = 32
	DefaultPoolIdleTimeout   = 60 * time.Second
	DefaultResolutionTTL     = 24 * time.Hour
	DefaultResolutionCap     = 10_000
	DefaultBatchConcurrency  = 4
	DefaultHTTPAddr          = ":8080"
	DefaultServiceName       = "subbox"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.AdjustConfig()
	return cfg
}
