// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the YAML layout. Pointer fields distinguish "unset" from zero.
type FileConfig struct {
	Log       *LogFile       `yaml:"log"`
	Redis     *RedisFile     `yaml:"redis"`
	Queue     *QueueFile     `yaml:"queue"`
	Worker    *WorkerFile    `yaml:"worker"`
	Reconnect *ReconnectFile `yaml:"reconnect"`
	Events    *EventsFile    `yaml:"events"`
	Store     *StoreFile     `yaml:"store"`
	API       *APIFile       `yaml:"api"`
	Telemetry *TelemetryFile `yaml:"telemetry"`
}

type LogFile struct {
	Level   *string `yaml:"level"`
	Service *string `yaml:"service"`
}

type RedisFile struct {
	Addr     *string `yaml:"addr"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
	PoolSize *int    `yaml:"poolSize"`
}

type QueueFile struct {
	Name          *string        `yaml:"name"`
	Prefix        *string        `yaml:"prefix"`
	Attempts      *int           `yaml:"attempts"`
	Backoff       *time.Duration `yaml:"backoff"`
	KeepCompleted *int           `yaml:"keepCompleted"`
	KeepFailed    *int           `yaml:"keepFailed"`
}

type WorkerFile struct {
	Concurrency          *int           `yaml:"concurrency"`
	PollTimeout          *time.Duration `yaml:"pollTimeout"`
	JobTimeout           *time.Duration `yaml:"jobTimeout"`
	RateLimit            *float64       `yaml:"rateLimit"`
	RateBurst            *int           `yaml:"rateBurst"`
	StartingPolicy       *string        `yaml:"startingPolicy"`
	UnknownSessionPolicy *string        `yaml:"unknownSessionPolicy"`
}

type ReconnectFile struct {
	BaseDelay   *time.Duration `yaml:"baseDelay"`
	Multiplier  *float64       `yaml:"multiplier"`
	MaxDelay    *time.Duration `yaml:"maxDelay"`
	Jitter      *float64       `yaml:"jitter"`
	MaxAttempts *int           `yaml:"maxAttempts"`
}

type EventsFile struct {
	ChannelPrefix  *string        `yaml:"channelPrefix"`
	Buffer         *int           `yaml:"buffer"`
	PublishTimeout *time.Duration `yaml:"publishTimeout"`
}

type StoreFile struct {
	Backend *string `yaml:"backend"`
	Path    *string `yaml:"path"`
}

type APIFile struct {
	ListenAddr *string `yaml:"listenAddr"`
	RateLimit  *int    `yaml:"rateLimit"`
}

type TelemetryFile struct {
	Enabled      *bool    `yaml:"enabled"`
	ExporterType *string  `yaml:"exporterType"`
	Endpoint     *string  `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
	Environment  *string  `yaml:"environment"`
}

// loadFile parses a YAML config file strictly. Unknown fields are an error.
func loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config file contains multiple documents or trailing content")
	}
	return &fc, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func mergeFile(cfg *AppConfig, fc *FileConfig) {
	if f := fc.Log; f != nil {
		setIf(&cfg.Log.Level, f.Level)
		setIf(&cfg.Log.Service, f.Service)
	}
	if f := fc.Redis; f != nil {
		setIf(&cfg.Redis.Addr, f.Addr)
		setIf(&cfg.Redis.Password, f.Password)
		setIf(&cfg.Redis.DB, f.DB)
		setIf(&cfg.Redis.PoolSize, f.PoolSize)
	}
	if f := fc.Queue; f != nil {
		setIf(&cfg.Queue.Name, f.Name)
		setIf(&cfg.Queue.Prefix, f.Prefix)
		setIf(&cfg.Queue.Attempts, f.Attempts)
		setIf(&cfg.Queue.Backoff, f.Backoff)
		setIf(&cfg.Queue.KeepCompleted, f.KeepCompleted)
		setIf(&cfg.Queue.KeepFailed, f.KeepFailed)
	}
	if f := fc.Worker; f != nil {
		setIf(&cfg.Worker.Concurrency, f.Concurrency)
		setIf(&cfg.Worker.PollTimeout, f.PollTimeout)
		setIf(&cfg.Worker.JobTimeout, f.JobTimeout)
		setIf(&cfg.Worker.RateLimit, f.RateLimit)
		setIf(&cfg.Worker.RateBurst, f.RateBurst)
		setIf(&cfg.Worker.StartingPolicy, f.StartingPolicy)
		setIf(&cfg.Worker.UnknownSessionPolicy, f.UnknownSessionPolicy)
	}
	if f := fc.Reconnect; f != nil {
		setIf(&cfg.Reconnect.BaseDelay, f.BaseDelay)
		setIf(&cfg.Reconnect.Multiplier, f.Multiplier)
		setIf(&cfg.Reconnect.MaxDelay, f.MaxDelay)
		setIf(&cfg.Reconnect.Jitter, f.Jitter)
		setIf(&cfg.Reconnect.MaxAttempts, f.MaxAttempts)
	}
	if f := fc.Events; f != nil {
		setIf(&cfg.Events.ChannelPrefix, f.ChannelPrefix)
		setIf(&cfg.Events.Buffer, f.Buffer)
		setIf(&cfg.Events.PublishTimeout, f.PublishTimeout)
	}
	if f := fc.Store; f != nil {
		setIf(&cfg.Store.Backend, f.Backend)
		setIf(&cfg.Store.Path, f.Path)
	}
	if f := fc.API; f != nil {
		setIf(&cfg.API.ListenAddr, f.ListenAddr)
		setIf(&cfg.API.RateLimit, f.RateLimit)
	}
	if f := fc.Telemetry; f != nil {
		setIf(&cfg.Telemetry.Enabled, f.Enabled)
		setIf(&cfg.Telemetry.ExporterType, f.ExporterType)
		setIf(&cfg.Telemetry.Endpoint, f.Endpoint)
		setIf(&cfg.Telemetry.SamplingRate, f.SamplingRate)
		setIf(&cfg.Telemetry.Environment, f.Environment)
	}
}
