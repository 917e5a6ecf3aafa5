// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package worker consumes command jobs from the durable queue and routes them to the
// session orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/metrics"
	"github.com/ManuGH/wagate/internal/queue"
	"github.com/ManuGH/wagate/internal/telemetry"
)

const (
	PolicyRetry = "retry"
	PolicyFail  = "fail"

	reserveErrorBackoff = time.Second
	ackTimeout          = 5 * time.Second
)

// SessionRouter is the orchestrator surface the worker needs.
type SessionRouter interface {
	StartSession(ctx context.Context, id string) error
	StopSession(ctx context.Context, id string) error
	Dispatch(ctx context.Context, id string, cmd model.Command) (model.CommandResult, error)
}

// JobSource is the queue surface the worker needs.
type JobSource interface {
	Reserve(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job, result any) error
	Fail(ctx context.Context, job *queue.Job, cause error, retryable bool) (bool, error)
	RecoverActive(ctx context.Context) (int, error)
}

// Config tunes the worker. Zero values select defaults.
type Config struct {
	Concurrency int
	PollTimeout time.Duration
	JobTimeout  time.Duration
	// RateLimit caps reserved jobs per second; 0 disables throttling.
	RateLimit float64
	RateBurst int
	// StartingPolicy decides whether a command for a STARTING session is retried or failed.
	StartingPolicy string
	// UnknownSessionPolicy decides whether a command for an unregistered session is retried.
	UnknownSessionPolicy string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = c.Concurrency
	}
	if c.StartingPolicy == "" {
		c.StartingPolicy = PolicyRetry
	}
	if c.UnknownSessionPolicy == "" {
		c.UnknownSessionPolicy = PolicyFail
	}
	return c
}

func (c Config) Validate() error {
	for name, v := range map[string]string{
		"starting_policy":        c.StartingPolicy,
		"unknown_session_policy": c.UnknownSessionPolicy,
	} {
		if v != PolicyRetry && v != PolicyFail {
			return fmt.Errorf("%s must be %q or %q, got %q", name, PolicyRetry, PolicyFail, v)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must be >= 0, got %v", c.RateLimit)
	}
	return nil
}

// Worker reserves jobs and executes them with bounded concurrency.
type Worker struct {
	src      JobSource
	sessions SessionRouter
	cfg      Config
	handlers map[model.CommandKind]handlerFunc
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   zerolog.Logger
}

func New(src JobSource, sessions SessionRouter, cfg Config) (*Worker, error) {
	if src == nil || sessions == nil {
		return nil, errors.New("worker: job source and session router are required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	w := &Worker{
		src:      src,
		sessions: sessions,
		cfg:      cfg,
		tracer:   telemetry.Tracer("wagate/worker"),
		logger:   log.WithComponent("worker"),
	}
	if cfg.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	w.handlers = w.handlerTable()
	return w, nil
}

// Run consumes jobs until ctx is cancelled, then waits for in-flight jobs to finish.
// In-flight jobs are not cancelled by ctx; each is bounded by the job timeout.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.src.RecoverActive(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("failed to recover stalled jobs")
	} else if n > 0 {
		w.logger.Info().Int("jobs", n).Msg("requeued stalled jobs")
	}

	w.logger.Info().
		Int("concurrency", w.cfg.Concurrency).
		Str("starting_policy", w.cfg.StartingPolicy).
		Str("unknown_session_policy", w.cfg.UnknownSessionPolicy).
		Msg("worker started")

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for ctx.Err() == nil {
		// Blocks while every slot is busy.
		g.Go(func() error {
			w.runOnce(ctx)
			return nil
		})
	}
	err := g.Wait()
	w.logger.Info().Msg("worker stopped")
	return err
}

func (w *Worker) runOnce(ctx context.Context) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
	}
	job, err := w.src.Reserve(ctx, w.cfg.PollTimeout)
	if errors.Is(err, queue.ErrNoJob) {
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error().Err(err).Msg("failed to reserve job")
		t := time.NewTimer(reserveErrorBackoff)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		return
	}
	w.Execute(context.WithoutCancel(ctx), job)
}

// Execute processes one reserved job and reports the outcome to the queue.
func (w *Worker) Execute(ctx context.Context, job *queue.Job) {
	start := time.Now()
	sessionID := peekSessionID(job.Data)
	ctx = log.ContextWithJob(ctx, job.ID, job.Name)
	if sessionID != "" {
		ctx = log.ContextWithSessionID(ctx, sessionID)
	}
	ctx, span := w.tracer.Start(ctx, "worker.job",
		trace.WithAttributes(telemetry.JobAttributes(job.ID, job.Name, sessionID, job.AttemptsMade+1)...))
	defer span.End()

	logger := log.WithContext(ctx, w.logger)

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	result, err := w.Process(jobCtx, job)
	cancel()
	elapsed := time.Since(start)

	// The outcome is recorded even when the job ran into its own deadline.
	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer ackCancel()

	if err == nil {
		if cerr := w.src.Complete(ackCtx, job, result); cerr != nil {
			logger.Error().Err(cerr).Msg("failed to acknowledge job")
		}
		metrics.RecordJob(job.Name, "completed", elapsed)
		span.SetAttributes(telemetry.JobOutcomeAttributes("completed", elapsed.Milliseconds())...)
		logger.Info().Str("status", result.Status).Dur("duration", elapsed).Msg("job completed")
		return
	}

	retryable := IsRetryable(err)
	retrying, ferr := w.src.Fail(ackCtx, job, err, retryable)
	if ferr != nil {
		logger.Error().Err(ferr).Msg("failed to record job failure")
	}
	outcome := "failed"
	if retrying {
		outcome = "retry"
	}
	metrics.RecordJob(job.Name, outcome, elapsed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(telemetry.JobOutcomeAttributes(outcome, elapsed.Milliseconds())...)
	span.SetAttributes(telemetry.ErrorAttributes(errorClass(retryable))...)

	ev := logger.Warn()
	if !retrying {
		ev = logger.Error()
	}
	ev.Err(err).
		Bool("retryable", retryable).
		Int(log.FieldAttempt, job.AttemptsMade).
		Int("max_attempts", job.MaxAttempts).
		Msg("job failed")
}

// Process routes job to its handler. Unknown job names fail permanently.
func (w *Worker) Process(ctx context.Context, job *queue.Job) (Result, error) {
	h, ok := w.handlers[model.CommandKind(job.Name)]
	if !ok {
		return Result{}, Permanent(fmt.Errorf("%w: %s", ErrUnknownCommandKind, job.Name))
	}
	return h(ctx, job)
}

func errorClass(retryable bool) string {
	if retryable {
		return "retryable"
	}
	return "permanent"
}
