// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

type validator struct {
	problems []string
}

func (v *validator) check(ok bool, format string, args ...any) {
	if !ok {
		v.problems = append(v.problems, fmt.Sprintf(format, args...))
	}
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg AppConfig) error {
	v := &validator{}

	v.check(cfg.Redis.Addr != "", "redis.addr is required")
	v.check(cfg.Redis.DB >= 0, "redis.db must be >= 0, got %d", cfg.Redis.DB)
	v.check(cfg.Redis.PoolSize >= 0, "redis.poolSize must be >= 0, got %d", cfg.Redis.PoolSize)

	v.check(cfg.Queue.Name != "", "queue.name is required")
	v.check(cfg.Queue.Attempts >= 1, "queue.attempts must be >= 1, got %d", cfg.Queue.Attempts)
	v.check(cfg.Queue.Backoff > 0, "queue.backoff must be > 0")
	v.check(cfg.Queue.KeepCompleted >= 0 && cfg.Queue.KeepFailed >= 0, "queue retention must be >= 0")

	v.check(cfg.Worker.Concurrency >= 1, "worker.concurrency must be >= 1, got %d", cfg.Worker.Concurrency)
	v.check(cfg.Worker.PollTimeout > 0, "worker.pollTimeout must be > 0")
	v.check(cfg.Worker.JobTimeout > 0, "worker.jobTimeout must be > 0")
	v.check(cfg.Worker.RateLimit >= 0, "worker.rateLimit must be >= 0")
	v.check(oneOf(cfg.Worker.StartingPolicy, "retry", "fail"),
		"worker.startingPolicy must be retry or fail, got %q", cfg.Worker.StartingPolicy)
	v.check(oneOf(cfg.Worker.UnknownSessionPolicy, "retry", "fail"),
		"worker.unknownSessionPolicy must be retry or fail, got %q", cfg.Worker.UnknownSessionPolicy)

	if err := ValidateReconnect(cfg.Reconnect); err != nil {
		v.problems = append(v.problems, err.Error())
	}

	v.check(cfg.Events.ChannelPrefix != "", "events.channelPrefix is required")
	v.check(cfg.Events.Buffer >= 1, "events.buffer must be >= 1, got %d", cfg.Events.Buffer)
	v.check(cfg.Events.PublishTimeout > 0, "events.publishTimeout must be > 0")

	v.check(oneOf(cfg.Store.Backend, "memory", "sqlite"), "store.backend must be memory or sqlite, got %q", cfg.Store.Backend)
	v.check(cfg.Store.Backend != "sqlite" || cfg.Store.Path != "", "store.path is required for the sqlite backend")

	v.check(cfg.API.RateLimit >= 0, "api.rateLimit must be >= 0")

	if cfg.Telemetry.Enabled {
		v.check(oneOf(cfg.Telemetry.ExporterType, "grpc", "http"),
			"telemetry.exporterType must be grpc or http, got %q", cfg.Telemetry.ExporterType)
		v.check(cfg.Telemetry.Endpoint != "", "telemetry.endpoint is required when telemetry is enabled")
		v.check(cfg.Telemetry.SamplingRate >= 0 && cfg.Telemetry.SamplingRate <= 1,
			"telemetry.samplingRate must be within [0,1]")
	}

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

// ValidateReconnect checks the reconnect section alone; hot reloads apply only this section.
func ValidateReconnect(r ReconnectConfig) error {
	switch {
	case r.BaseDelay <= 0:
		return errors.New("reconnect.baseDelay must be > 0")
	case r.Multiplier < 1:
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %v", r.Multiplier)
	case r.MaxDelay < r.BaseDelay:
		return errors.New("reconnect.maxDelay must be >= reconnect.baseDelay")
	case r.Jitter < 0 || r.Jitter >= 1:
		return fmt.Errorf("reconnect.jitter must be within [0,1), got %v", r.Jitter)
	case r.MaxAttempts < 0:
		return fmt.Errorf("reconnect.maxAttempts must be >= 0, got %d", r.MaxAttempts)
	}
	return nil
}
