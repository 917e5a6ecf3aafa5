// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the orchestrator, queue worker, event relay and ops API into one
// process and owns their startup and shutdown order.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/wagate/internal/api"
	"github.com/ManuGH/wagate/internal/config"
	"github.com/ManuGH/wagate/internal/domain/session/actor"
	"github.com/ManuGH/wagate/internal/domain/session/manager"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/domain/session/store"
	"github.com/ManuGH/wagate/internal/events"
	"github.com/ManuGH/wagate/internal/health"
	"github.com/ManuGH/wagate/internal/infra/bus"
	"github.com/ManuGH/wagate/internal/infra/protocol/stub"
	"github.com/ManuGH/wagate/internal/infra/redisclient"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/queue"
	"github.com/ManuGH/wagate/internal/telemetry"
	"github.com/ManuGH/wagate/internal/worker"
)

const defaultShutdownTimeout = 30 * time.Second

var ErrAlreadyRunning = errors.New("daemon: already running")

// DefaultReloadSignal triggers a manual config reload.
var DefaultReloadSignal os.Signal = syscall.SIGHUP

// ShutdownHook releases one resource during shutdown.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Options overrides parts of the wiring. Zero values select production defaults.
type Options struct {
	// Clients builds protocol clients; defaults to the stub client.
	Clients ports.ClientFactory
	// Holder enables hot reload of the reconnect policy.
	Holder *config.Holder
	// ShutdownTimeout bounds the whole shutdown sequence.
	ShutdownTimeout time.Duration
	// ReloadSignal triggers a manual config reload; nil disables it.
	ReloadSignal os.Signal
}

// App owns every long-lived component of the daemon.
type App struct {
	cfg    config.AppConfig
	opts   Options
	logger zerolog.Logger

	Redis        *redis.Client
	Store        ports.StateStore
	Publisher    *events.Publisher
	Orchestrator *manager.Orchestrator
	Queue        *queue.Queue
	Worker       *worker.Worker
	Health       *health.Manager
	API          *api.Server

	hooks   []namedHook
	running bool
}

// ReconnectPolicy converts the configuration section to the orchestrator policy.
func ReconnectPolicy(c config.ReconnectConfig) manager.ReconnectPolicy {
	return manager.ReconnectPolicy{
		BaseDelay:   c.BaseDelay,
		Multiplier:  c.Multiplier,
		MaxDelay:    c.MaxDelay,
		Jitter:      c.Jitter,
		MaxAttempts: uint(max(c.MaxAttempts, 0)),
	}
}

// New connects to Redis, opens the session store and builds every component.
// On error, everything opened so far is released.
func New(ctx context.Context, cfg config.AppConfig, opts Options) (app *App, err error) {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.Clients == nil {
		opts.Clients = stub.NewFactory(stub.Options{}).NewClient
	}
	a := &App{cfg: cfg, opts: opts, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = a.runHooks(context.Background())
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.RegisterShutdownHook("telemetry", tp.Shutdown)

	a.Redis, err = redisclient.Open(ctx, redisclient.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	a.Publisher = events.NewPublisher(bus.NewRedisBus(a.Redis), events.Options{
		Prefix:  cfg.Events.ChannelPrefix,
		OnClose: a.Redis.Close,
	})
	a.RegisterShutdownHook("publisher", func(context.Context) error { return a.Publisher.Close() })

	a.Store, err = store.OpenStateStore(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	a.RegisterShutdownHook("session_store", func(context.Context) error { return a.Store.Close() })

	a.Orchestrator, err = manager.New(manager.Config{
		Actors:         actor.Factory{NewClient: opts.Clients, EventBuffer: cfg.Events.Buffer},
		Publisher:      a.Publisher,
		Store:          a.Store,
		Policy:         ReconnectPolicy(cfg.Reconnect),
		PublishTimeout: cfg.Events.PublishTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.RegisterShutdownHook("orchestrator", a.Orchestrator.Shutdown)

	a.Queue = queue.New(a.Redis, queue.Options{
		Name:          cfg.Queue.Name,
		Prefix:        cfg.Queue.Prefix,
		Attempts:      cfg.Queue.Attempts,
		Backoff:       cfg.Queue.Backoff,
		KeepCompleted: int64(cfg.Queue.KeepCompleted),
		KeepFailed:    int64(cfg.Queue.KeepFailed),
	})

	a.Worker, err = worker.New(a.Queue, a.Orchestrator, worker.Config{
		Concurrency:          cfg.Worker.Concurrency,
		PollTimeout:          cfg.Worker.PollTimeout,
		JobTimeout:           cfg.Worker.JobTimeout,
		RateLimit:            cfg.Worker.RateLimit,
		RateBurst:            cfg.Worker.RateBurst,
		StartingPolicy:       cfg.Worker.StartingPolicy,
		UnknownSessionPolicy: cfg.Worker.UnknownSessionPolicy,
	})
	if err != nil {
		return nil, err
	}

	a.Health = health.NewManager(cfg.Version)
	a.Health.RegisterChecker(health.NewRedisChecker(a.Redis))
	if v, ok := a.Store.(health.Verifier); ok {
		a.Health.RegisterChecker(health.NewStoreChecker(v))
	}
	a.Health.RegisterChecker(health.NewSessionsChecker(a.Orchestrator))

	a.API, err = api.NewServer(api.Deps{
		Health:    a.Health,
		Sessions:  a.Orchestrator,
		Queue:     a.Queue,
		RateLimit: cfg.API.RateLimit,
		Service:   cfg.Log.Service,
	})
	if err != nil {
		return nil, err
	}

	if opts.Holder != nil {
		opts.Holder.OnReload(a.applyConfig)
	}
	return a, nil
}

// RegisterShutdownHook registers a cleanup function. Hooks run in reverse registration order.
func (a *App) RegisterShutdownHook(name string, hook ShutdownHook) {
	a.hooks = append(a.hooks, namedHook{name: name, hook: hook})
}

func (a *App) applyConfig(old, updated config.AppConfig) {
	if old.Reconnect == updated.Reconnect {
		return
	}
	if err := a.Orchestrator.SetPolicy(ReconnectPolicy(updated.Reconnect)); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "config.apply_failed").Msg("rejected reconnect policy from reloaded config")
	}
}

// Run restores persisted sessions, then serves until ctx is cancelled or a component fails.
// Shutdown order: worker and API stop first, then the orchestrator, then the store,
// publisher and telemetry.
func (a *App) Run(ctx context.Context) error {
	if a.running {
		return ErrAlreadyRunning
	}
	a.running = true

	if err := a.Orchestrator.Restore(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to restore persisted sessions")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Worker.Run(gctx) })

	if a.cfg.API.ListenAddr != "" {
		g.Go(func() error { return a.API.ListenAndServe(gctx, a.cfg.API.ListenAddr) })
	}

	if h := a.opts.Holder; h != nil {
		if err := h.StartWatcher(gctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		if a.opts.ReloadSignal != nil {
			g.Go(func() error {
				a.reloadOnSignal(gctx, h)
				return nil
			})
		}
	}

	a.logger.Info().
		Str("queue", a.Queue.Name()).
		Str("store", a.cfg.Store.Backend).
		Msg("daemon started")

	runErr := g.Wait()
	if h := a.opts.Holder; h != nil {
		h.Wait()
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.ShutdownTimeout)
	defer cancel()
	shutdownErr := a.runHooks(sctx)

	if runErr != nil {
		return runErr
	}
	return shutdownErr
}

func (a *App) reloadOnSignal(ctx context.Context, h *config.Holder) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, a.opts.ReloadSignal)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			a.logger.Info().
				Str(log.FieldEvent, "config.reload_signal").
				Str("signal", a.opts.ReloadSignal.String()).
				Msg("received reload signal, reloading config")
			if err := h.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}

func (a *App) runHooks(ctx context.Context) error {
	var errs []error
	for i := len(a.hooks) - 1; i >= 0; i-- {
		h := a.hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			a.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		a.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}
	a.hooks = nil
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	a.logger.Info().Msg("daemon stopped cleanly")
	return nil
}
