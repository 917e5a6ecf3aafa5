// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads wagate configuration with precedence ENV > YAML file > defaults.
package config

import "time"

// EnvPrefix prefixes every environment key read by the loader.
const EnvPrefix = "WAGATE_"

// AppConfig is the fully resolved process configuration.
type AppConfig struct {
	Version string

	Log       LogConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Reconnect ReconnectConfig
	Events    EventsConfig
	Store     StoreConfig
	API       APIConfig
	Telemetry TelemetryConfig
}

type LogConfig struct {
	Level   string
	Service string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type QueueConfig struct {
	Name          string
	Prefix        string
	Attempts      int
	Backoff       time.Duration
	KeepCompleted int
	KeepFailed    int
}

type WorkerConfig struct {
	Concurrency int
	PollTimeout time.Duration
	JobTimeout  time.Duration
	// RateLimit is jobs per second; 0 disables throttling.
	RateLimit            float64
	RateBurst            int
	StartingPolicy       string
	UnknownSessionPolicy string
}

type ReconnectConfig struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      float64
	MaxAttempts int
}

type EventsConfig struct {
	ChannelPrefix  string
	Buffer         int
	PublishTimeout time.Duration
}

type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string
	Path    string
}

type APIConfig struct {
	// ListenAddr is the ops HTTP address; empty disables the server.
	ListenAddr string
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
}

type TelemetryConfig struct {
	Enabled      bool
	ExporterType string
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// Defaults returns the configuration used when neither file nor environment set a key.
func Defaults() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "wagate"},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Queue: QueueConfig{
			Name:          "whatsapp-jobs",
			Prefix:        "wagate",
			Attempts:      3,
			Backoff:       time.Second,
			KeepCompleted: 1000,
			KeepFailed:    5000,
		},
		Worker: WorkerConfig{
			Concurrency:          5,
			PollTimeout:          time.Second,
			JobTimeout:           30 * time.Second,
			StartingPolicy:       "retry",
			UnknownSessionPolicy: "fail",
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   time.Second,
			Multiplier:  2,
			MaxDelay:    time.Minute,
			Jitter:      0.2,
			MaxAttempts: 5,
		},
		Events: EventsConfig{
			ChannelPrefix:  "whatsapp:events",
			Buffer:         64,
			PublishTimeout: 5 * time.Second,
		},
		Store: StoreConfig{Backend: "memory"},
		API: APIConfig{
			ListenAddr: ":8089",
			RateLimit:  120,
		},
		Telemetry: TelemetryConfig{
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
