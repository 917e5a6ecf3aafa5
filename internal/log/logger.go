// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LevelEnv is consulted when Config.Level is empty.
const LevelEnv = "WAGATE_LOG_LEVEL"

const defaultService = "wagate"

// Config captures options for configuring the process logger.
type Config struct {
	Level   string    // "debug", "info", ...; invalid values mean info
	Output  io.Writer // defaults to os.Stdout
	Service string    // attached to every entry, defaults to "wagate"
	Version string    // build version attached to every entry
}

var base atomic.Pointer[zerolog.Logger]

// Configure replaces the process logger. Binaries call it once with defaults and
// again after their configuration is loaded.
func Configure(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = defaultService
	}

	c := zerolog.New(out).With().Timestamp().Str(FieldService, service)
	if cfg.Version != "" {
		c = c.Str(FieldVersion, cfg.Version)
	}
	l := c.Logger()
	base.Store(&l)
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		s = os.Getenv(LevelEnv)
	}
	if lvl, err := zerolog.ParseLevel(s); err == nil && s != "" {
		return lvl
	}
	return zerolog.InfoLevel
}

func current() zerolog.Logger {
	if l := base.Load(); l != nil {
		return *l
	}
	Configure(Config{})
	return *base.Load()
}

// L returns a copy of the process logger.
func L() *zerolog.Logger {
	l := current()
	return &l
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return current().With().Str(FieldComponent, component).Logger()
}
