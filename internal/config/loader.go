// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/wagate/internal/log"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
	lookup     envLookupFunc
	logger     zerolog.Logger
	// ConsumedEnvKeys records every environment key the last Load consulted.
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		lookup:          os.LookupEnv,
		logger:          log.WithComponent("config"),
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, or "" when configuration comes from ENV only.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) consume(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(key, def string) string {
	return parseString(l.lookup, l.logger, l.consume(key), def)
}

func (l *Loader) envInt(key string, def int) int {
	return parseInt(l.lookup, l.logger, l.consume(key), def)
}

func (l *Loader) envBool(key string, def bool) bool {
	return parseBool(l.lookup, l.logger, l.consume(key), def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	return parseDuration(l.lookup, l.logger, l.consume(key), def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	return parseFloat(l.lookup, l.logger, l.consume(key), def)
}

// Load resolves configuration: defaults, then the strict YAML file, then environment,
// then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fc, err := loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fc)
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if cfg.Store.Backend == "sqlite" && cfg.Store.Path != "" {
		if abs, err := filepath.Abs(cfg.Store.Path); err == nil {
			cfg.Store.Path = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Redis.Addr = l.envString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = l.envInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	cfg.Queue.Name = l.envString("QUEUE_NAME", cfg.Queue.Name)
	cfg.Queue.Prefix = l.envString("QUEUE_PREFIX", cfg.Queue.Prefix)
	cfg.Queue.Attempts = l.envInt("QUEUE_ATTEMPTS", cfg.Queue.Attempts)
	cfg.Queue.Backoff = l.envDuration("QUEUE_BACKOFF", cfg.Queue.Backoff)
	cfg.Queue.KeepCompleted = l.envInt("QUEUE_KEEP_COMPLETED", cfg.Queue.KeepCompleted)
	cfg.Queue.KeepFailed = l.envInt("QUEUE_KEEP_FAILED", cfg.Queue.KeepFailed)

	cfg.Worker.Concurrency = l.envInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.PollTimeout = l.envDuration("WORKER_POLL_TIMEOUT", cfg.Worker.PollTimeout)
	cfg.Worker.JobTimeout = l.envDuration("WORKER_JOB_TIMEOUT", cfg.Worker.JobTimeout)
	cfg.Worker.RateLimit = l.envFloat("WORKER_RATE_LIMIT", cfg.Worker.RateLimit)
	cfg.Worker.RateBurst = l.envInt("WORKER_RATE_BURST", cfg.Worker.RateBurst)
	cfg.Worker.StartingPolicy = l.envString("WORKER_STARTING_POLICY", cfg.Worker.StartingPolicy)
	cfg.Worker.UnknownSessionPolicy = l.envString("WORKER_UNKNOWN_SESSION_POLICY", cfg.Worker.UnknownSessionPolicy)

	cfg.Reconnect.BaseDelay = l.envDuration("RECONNECT_BASE_DELAY", cfg.Reconnect.BaseDelay)
	cfg.Reconnect.Multiplier = l.envFloat("RECONNECT_MULTIPLIER", cfg.Reconnect.Multiplier)
	cfg.Reconnect.MaxDelay = l.envDuration("RECONNECT_MAX_DELAY", cfg.Reconnect.MaxDelay)
	cfg.Reconnect.Jitter = l.envFloat("RECONNECT_JITTER", cfg.Reconnect.Jitter)
	cfg.Reconnect.MaxAttempts = l.envInt("RECONNECT_MAX_ATTEMPTS", cfg.Reconnect.MaxAttempts)

	cfg.Events.ChannelPrefix = l.envString("EVENTS_CHANNEL_PREFIX", cfg.Events.ChannelPrefix)
	cfg.Events.Buffer = l.envInt("EVENTS_BUFFER", cfg.Events.Buffer)
	cfg.Events.PublishTimeout = l.envDuration("EVENTS_PUBLISH_TIMEOUT", cfg.Events.PublishTimeout)

	cfg.Store.Backend = l.envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)

	cfg.API.ListenAddr = l.envString("API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt("API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
}
