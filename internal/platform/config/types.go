package config

import "time"

// Config mirrors base.yaml. Keys are the koanf tags.
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Client    ClientConfig    `koanf:"client"    validate:"required"`
	Services  ServicesConfig  `koanf:"services"  validate:"required"`
	Storage   StorageConfig   `koanf:"storage"   validate:"required"`
	Sync      SyncConfig      `koanf:"sync"      validate:"required"`
}

type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig is the HTTP listener of the service binary.
type ServerConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"required,min=1,max=65535"`

	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`

	// MaxRequestSize caps request bodies, import payloads included.
	MaxRequestSize int64 `koanf:"max_request_size" validate:"required,min=1"`
}

type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig adds a rotated JSON log file next to the console output.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig turns on OTLP trace export. Metrics are always served
// on /-/metrics.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// ClientConfig shapes every outbound HTTP call.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	Retry          RetryConfig          `koanf:"retry"           validate:"required"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
	Transport      TransportConfig      `koanf:"transport"       validate:"required"`

	// RetryNonIdempotent lets POST and PATCH be retried too. Off by default
	// because a retried push can create a duplicate remote post.
	RetryNonIdempotent bool `koanf:"retry_non_idempotent"`
}

type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`

	// JitterFactor moves each backoff by up to this fraction either way.
	JitterFactor float64 `koanf:"jitter_factor" validate:"min=0,max=1"`
}

type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"required,min=1s"`
}

type ServicesConfig struct {
	Quotes QuoteSourceConfig `koanf:"quotes" validate:"required"`
}

// QuoteSourceConfig describes the remote posts API quotes are synced with.
type QuoteSourceConfig struct {
	Name    string `koanf:"name"     validate:"required"`
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// PostsPath is the collection resource, relative to BaseURL.
	PostsPath string `koanf:"posts_path" validate:"required,startswith=/"`

	// Category is assigned to every fetched record; the remote has none.
	Category string `koanf:"category" validate:"required"`

	// UserID is sent with every push.
	UserID int `koanf:"user_id" validate:"min=0"`
}

// StorageConfig selects and configures the snapshot store.
type StorageConfig struct {
	Driver        string `koanf:"driver"         validate:"required,oneof=sqlite memory"`
	Path          string `koanf:"path"           validate:"required_if=Driver sqlite"`
	CollectionKey string `koanf:"collection_key" validate:"required"`
	FilterKey     string `koanf:"filter_key"     validate:"required,nefield=CollectionKey"`

	// Seed starts an empty store with the three stock quotes.
	Seed bool `koanf:"seed"`
}

// SyncConfig controls reconciliation with the remote source.
type SyncConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Interval        time.Duration `koanf:"interval"         validate:"required,min=1s"`
	Timeout         time.Duration `koanf:"timeout"          validate:"required,min=100ms"`
	PushOnAdd       bool          `koanf:"push_on_add"`
	PushPending     bool          `koanf:"push_pending"`
	PushConcurrency int           `koanf:"push_concurrency" validate:"required,min=1,max=64"`
}
