// Package config loads quotesync settings with koanf.
//
// Sources, later ones winning:
//
//	built-in defaults
//	{dir}/base.yaml
//	{dir}/{profile}.yaml
//	APP_* environment variables (a .env file may seed them)
//
// Missing files are skipped. The result still has to pass Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultConfigDir = "configs"

	DefaultServerPort     = 8080
	DefaultMaxRequestSize = 1 << 20

	DefaultClientRetryMaxAttempts   = 3
	DefaultClientCircuitMaxFailures = 5

	// DefaultSyncInterval matches the five minute refresh of the browser app.
	DefaultSyncInterval    = 5 * time.Minute
	DefaultPushConcurrency = 4
	DefaultQuoteUserID     = 1

	envPrefix = "APP_"
)

func defaults() map[string]any {
	return map[string]any{
		"app.name":        "quotesync",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/quotesync.log",
		"log.file.max_size":    100,
		"log.file.max_backups": 3,
		"log.file.max_age":     28,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "quotesync",
		"telemetry.sampling_rate": 1.0,

		"client.timeout":                           "10s",
		"client.retry.max_attempts":                DefaultClientRetryMaxAttempts,
		"client.retry.initial_interval":            "100ms",
		"client.retry.max_interval":                "5s",
		"client.retry.multiplier":                  2.0,
		"client.retry.jitter_factor":               0.25,
		"client.circuit_breaker.max_failures":      DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   3,
		"client.transport.max_idle_conns":          100,
		"client.transport.max_idle_conns_per_host": 10,
		"client.transport.idle_conn_timeout":       "90s",
		"client.retry_non_idempotent":              false,

		"services.quotes.base_url":   "https://jsonplaceholder.typicode.com",
		"services.quotes.name":       "quote-source",
		"services.quotes.posts_path": "/posts",
		"services.quotes.category":   "Synced",
		"services.quotes.user_id":    DefaultQuoteUserID,

		"storage.driver":         "sqlite",
		"storage.path":           "./data/quotes.db",
		"storage.collection_key": "quotes",
		"storage.filter_key":     "lastFilter",
		"storage.seed":           true,

		"sync.enabled":          true,
		"sync.interval":         DefaultSyncInterval.String(),
		"sync.timeout":          "30s",
		"sync.push_on_add":      false,
		"sync.push_pending":     false,
		"sync.push_concurrency": DefaultPushConcurrency,
	}
}

// Load reads from DefaultConfigDir.
func Load(profile string) (*Config, error) {
	return LoadFrom(DefaultConfigDir, profile)
}

// LoadFrom layers defaults, dir/base.yaml, dir/{profile}.yaml and the
// environment, then decodes the result. An empty profile skips the
// profile file.
func LoadFrom(dir, profile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	files := []string{"base"}
	if profile != "" {
		files = append(files, profile)
	}

	for _, name := range files {
		path := filepath.Join(dir, name+".yaml")

		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	// Keys present after the files are what env names are matched against.
	known := make(map[string]struct{}, len(k.Keys()))
	for _, key := range k.Keys() {
		known[key] = struct{}{}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(name string) string {
		return envKey(known, name)
	}), nil); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	cfg := new(Config)
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv copies a .env file into the process environment without
// overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}

	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("%s: %w", path, err)
}

// envKey maps APP_SYNC_PUSH_ON_ADD to sync.push_on_add. Underscores are
// ambiguous, so the split that names a known key wins; unknown variables
// fall back to one level per underscore.
func envKey(known map[string]struct{}, name string) string {
	parts := strings.Split(strings.ToLower(strings.TrimPrefix(name, envPrefix)), "_")

	if key, ok := matchKey(known, parts[0], parts[1:]); ok {
		return key
	}

	return strings.Join(parts, ".")
}

func matchKey(known map[string]struct{}, prefix string, rest []string) (string, bool) {
	if len(rest) == 0 {
		_, ok := known[prefix]
		return prefix, ok
	}

	if key, ok := matchKey(known, prefix+"."+rest[0], rest[1:]); ok {
		return key, true
	}

	return matchKey(known, prefix+"_"+rest[0], rest[1:])
}
