// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command daemon runs the wagate session orchestrator, queue worker and event relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/wagate/internal/config"
	"github.com/ManuGH/wagate/internal/daemon"
	"github.com/ManuGH/wagate/internal/health"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	log.Configure(log.Config{Level: "info", Service: "wagate", Version: version.Version})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", ""))
	}

	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "config.load_failed").Str("config_path", path).Msg("failed to load configuration")
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: cfg.Version})
	logger = log.WithComponent("daemon")
	if path != "" {
		logger.Info().Str(log.FieldEvent, "config.loaded").Str("source", "file").Str("path", path).Msg("loaded configuration from file")
	} else {
		logger.Info().Str(log.FieldEvent, "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "startup.check_failed").Msg("startup checks failed")
	}

	app, err := daemon.New(ctx, cfg, daemon.Options{
		Holder:       config.NewHolder(cfg, loader),
		ReloadSignal: daemon.DefaultReloadSignal,
	})
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "startup.failed").Msg("failed to initialise daemon")
	}

	logger.Info().
		Str("version", cfg.Version).
		Str("redis", cfg.Redis.Addr).
		Str("queue", cfg.Queue.Name).
		Int("concurrency", cfg.Worker.Concurrency).
		Str("api", cfg.API.ListenAddr).
		Msg("starting wagate")

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}
