// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/metrics"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultStoreTimeout   = 2 * time.Second
	releaseTimeout        = 10 * time.Second
)

// Config wires an Orchestrator.
type Config struct {
	Actors    ports.ActorFactory
	Publisher ports.EventPublisher
	// Store is optional; when nil session snapshots are not persisted.
	Store  ports.StateStore
	Policy ReconnectPolicy

	PublishTimeout time.Duration
	Now            func() time.Time
}

// Orchestrator owns every live session: it creates actors, drives their lifecycle,
// reconnects lost connections and relays their events.
type Orchestrator struct {
	actors         ports.ActorFactory
	publisher      ports.EventPublisher
	store          ports.StateStore
	publishTimeout time.Duration
	now            func() time.Time
	logger         zerolog.Logger

	policy atomic.Pointer[ReconnectPolicy]

	// mu guards sessions and closed only; it is never held across I/O.
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
	closed   bool

	tasks taskGroup
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Actors == nil {
		return nil, errors.New("orchestrator: actor factory is required")
	}
	if cfg.Policy == (ReconnectPolicy{}) {
		cfg.Policy = DefaultReconnectPolicy()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	o := &Orchestrator{
		actors:         cfg.Actors,
		publisher:      cfg.Publisher,
		store:          cfg.Store,
		publishTimeout: cfg.PublishTimeout,
		now:            cfg.Now,
		logger:         log.WithComponent("orchestrator"),
		sessions:       make(map[string]*sessionRecord),
	}
	p := cfg.Policy
	o.policy.Store(&p)
	return o, nil
}

// Policy returns the reconnect policy currently in effect.
func (o *Orchestrator) Policy() ReconnectPolicy {
	return *o.policy.Load()
}

// SetPolicy swaps the reconnect policy. Pending backoff delays keep their computed value;
// later attempts use the new policy.
func (o *Orchestrator) SetPolicy(p ReconnectPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	o.policy.Store(&p)
	o.logger.Info().
		Dur("base_delay", p.BaseDelay).
		Dur("max_delay", p.MaxDelay).
		Uint("max_attempts", p.MaxAttempts).
		Msg("reconnect policy updated")
	return nil
}

// StartSession registers id and begins connecting. It is idempotent for sessions that are
// already starting, connected or reconnecting, and restarts FAILED or STOPPED sessions.
// It returns once the session is registered; connection progress is reported as events.
func (o *Orchestrator) StartSession(ctx context.Context, id string) error {
	if !model.IsSafeSessionID(id) {
		return fmt.Errorf("%w: %q", lifecycle.ErrInvalidSessionID, id)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := o.getOrCreate(id)
		if err != nil {
			return err
		}

		rec.mu.Lock()
		if rec.removed {
			// Lost a race with StopSession; register a fresh record.
			rec.mu.Unlock()
			continue
		}
		switch rec.state {
		case model.SessionStarting, model.SessionConnected, model.SessionReconnecting:
			rec.mu.Unlock()
			return nil
		case model.SessionStopping:
			rec.mu.Unlock()
			return &lifecycle.NotReadyError{SessionID: id, State: model.SessionStopping}
		}
		orphan, err := o.startLocked(rec)
		rec.mu.Unlock()
		if orphan != nil {
			o.release(orphan)
		}
		return err
	}
}

// startLocked launches a new generation for rec. Caller holds rec.mu. When the
// orchestrator is shutting down the session is marked FAILED and the actor that could
// not be started is returned for the caller to release after unlocking.
func (o *Orchestrator) startLocked(rec *sessionRecord) (ports.Actor, error) {
	if !o.transitionLocked(rec, lifecycle.EvStartRequested) {
		return nil, fmt.Errorf("%w: start from %s", lifecycle.ErrIllegalTransition, rec.state)
	}
	rec.attempts = 0
	rec.failures = 0
	rec.lastErr = nil
	rec.bo = nil

	a, err := o.actors.NewActor(rec.id)
	if err != nil {
		cause := fmt.Errorf("%w: %v", lifecycle.ErrConnectFailure, err)
		rec.lastErr = o.errorInfo(cause)
		o.transitionLocked(rec, lifecycle.EvTerminalFailure)
		metrics.IncSessionFailed(rec.lastErr.Code)
		return nil, cause
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec.gen++
	rec.ctx, rec.cancel = ctx, cancel
	rec.actor = a
	rec.pending = true
	pumpDone := make(chan struct{})
	rec.pumpDone = pumpDone
	gen := rec.gen

	abort := func() (ports.Actor, error) {
		cancel()
		rec.actor = nil
		rec.pending = false
		rec.lastErr = o.errorInfo(lifecycle.ErrShuttingDown)
		o.transitionLocked(rec, lifecycle.EvTerminalFailure)
		return a, lifecycle.ErrShuttingDown
	}

	if !o.tasks.Go(func() {
		defer close(pumpDone)
		o.pump(ctx, rec, gen, a)
	}) {
		close(pumpDone)
		return abort()
	}
	// The pump is running; cancel makes it exit without reporting a failure.
	if !o.tasks.Go(func() { o.connect(ctx, rec, gen, a) }) {
		return abort()
	}
	return nil, nil
}

// StopSession disconnects and removes id. Pending reconnects and in-flight connects are
// cancelled. Unknown ids are a no-op. A concurrent stop waits for the first to finish.
func (o *Orchestrator) StopSession(ctx context.Context, id string) error {
	o.mu.RLock()
	rec := o.sessions[id]
	o.mu.RUnlock()
	if rec == nil {
		return nil
	}

	rec.mu.Lock()
	if rec.removed {
		rec.mu.Unlock()
		return nil
	}
	if rec.state == model.SessionStopping {
		done := rec.stopped
		rec.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !o.transitionLocked(rec, lifecycle.EvStopRequested) {
		rec.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", lifecycle.ErrIllegalTransition, rec.state)
	}
	rec.stopped = make(chan struct{})
	if rec.cancel != nil {
		rec.cancel()
	}
	a := rec.actor
	rec.actor = nil
	pumpDone := rec.pumpDone
	rec.mu.Unlock()

	var errs []error
	if a != nil {
		if err := a.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if pumpDone != nil {
		select {
		case <-pumpDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for event pump: %w", ctx.Err()))
		}
	}

	rec.mu.Lock()
	o.transitionLocked(rec, lifecycle.EvStopped)
	rec.removed = true
	close(rec.stopped)
	o.mu.Lock()
	if o.sessions[id] == rec {
		delete(o.sessions, id)
	}
	o.mu.Unlock()
	o.forgetLocked(rec)
	rec.mu.Unlock()

	metrics.RecordSessionTransition(string(model.SessionStopped), "")
	if len(errs) > 0 {
		return fmt.Errorf("stop session %s: %w", id, errors.Join(errs...))
	}
	return nil
}

// GetSession returns the actor of a CONNECTED session.
func (o *Orchestrator) GetSession(id string) (ports.Actor, error) {
	o.mu.RLock()
	rec := o.sessions[id]
	o.mu.RUnlock()
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrSessionNotFound, id)
	}

	rec.mu.Lock()
	state, a := rec.state, rec.actor
	rec.mu.Unlock()
	if state != model.SessionConnected || a == nil {
		return nil, &lifecycle.NotReadyError{SessionID: id, State: state}
	}
	return a, nil
}

// Dispatch routes cmd to the session's actor and returns its result unchanged.
func (o *Orchestrator) Dispatch(ctx context.Context, id string, cmd model.Command) (model.CommandResult, error) {
	a, err := o.GetSession(id)
	if err != nil {
		return model.CommandResult{}, err
	}
	if cmd.SessionID == "" {
		cmd.SessionID = id
	}
	return a.SendCommand(ctx, cmd)
}

// Shutdown rejects new sessions, stops every registered session concurrently and waits
// for all orchestrator goroutines to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	o.logger.Info().Int("sessions", len(ids)).Msg("orchestrator shutting down")

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			return o.StopSession(ctx, id)
		})
	}
	err := g.Wait()

	if werr := o.tasks.CloseAndWait(ctx); werr != nil {
		err = errors.Join(err, werr)
	}

	o.mu.Lock()
	clear(o.sessions)
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn().Err(err).Msg("orchestrator shutdown incomplete")
		return err
	}
	o.logger.Info().Msg("orchestrator stopped")
	return nil
}

// Session returns a snapshot of one registered session.
func (o *Orchestrator) Session(id string) (model.SessionInfo, bool) {
	o.mu.RLock()
	rec := o.sessions[id]
	o.mu.RUnlock()
	if rec == nil {
		return model.SessionInfo{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.infoLocked(), true
}

// Sessions returns snapshots of every registered session ordered by id.
func (o *Orchestrator) Sessions() []model.SessionInfo {
	o.mu.RLock()
	recs := make([]*sessionRecord, 0, len(o.sessions))
	for _, rec := range o.sessions {
		recs = append(recs, rec)
	}
	o.mu.RUnlock()

	out := make([]model.SessionInfo, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.removed {
			out = append(out, rec.infoLocked())
		}
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Restore re-registers sessions persisted by a previous process. Active sessions are
// started again; FAILED sessions are registered so their last error stays queryable.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	infos, err := o.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	var restarted, failed int
	for _, info := range infos {
		l := o.logger.With().Str(log.FieldSessionID, info.SessionID).Str("state", string(info.State)).Logger()
		switch info.State {
		case model.SessionFailed:
			if o.registerFailed(info) {
				failed++
			}
		case model.SessionStopped, model.SessionStopping:
			if err := o.store.DeleteSession(ctx, info.SessionID); err != nil {
				l.Warn().Err(err).Msg("failed to drop stale session snapshot")
			}
		default:
			if err := o.StartSession(ctx, info.SessionID); err != nil {
				l.Error().Err(err).Msg("failed to restore session")
				continue
			}
			restarted++
		}
	}
	o.logger.Info().Int("restarted", restarted).Int("failed", failed).Msg("sessions restored")
	return nil
}

func (o *Orchestrator) registerFailed(info model.SessionInfo) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if _, exists := o.sessions[info.SessionID]; exists {
		return false
	}
	rec := newSessionRecord(info.SessionID, info.CreatedAt)
	rec.state = model.SessionFailed
	rec.attempts = info.ReconnectAttempts
	rec.lastErr = info.LastError
	rec.updatedAt = info.UpdatedAt
	o.sessions[info.SessionID] = rec
	metrics.RecordSessionTransition("", string(model.SessionFailed))
	return true
}

func (o *Orchestrator) getOrCreate(id string) (*sessionRecord, error) {
	o.mu.RLock()
	rec, ok := o.sessions[id]
	closed := o.closed
	o.mu.RUnlock()
	if closed {
		return nil, lifecycle.ErrShuttingDown
	}
	if ok {
		return rec, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, lifecycle.ErrShuttingDown
	}
	if rec, ok := o.sessions[id]; ok {
		return rec, nil
	}
	rec = newSessionRecord(id, o.now().UTC())
	o.sessions[id] = rec
	metrics.RecordSessionTransition("", string(model.SessionIdle))
	return rec, nil
}

func (o *Orchestrator) publish(ev model.Event) {
	if o.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.publishTimeout)
	defer cancel()
	// The publisher logs and counts its own failures.
	_ = o.publisher.Publish(ctx, ev)
}

func (o *Orchestrator) release(a ports.Actor) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := a.Disconnect(ctx); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldSessionID, a.SessionID()).Msg("failed to release actor")
	}
}

func (o *Orchestrator) errorInfo(err error) *model.ErrorInfo {
	return &model.ErrorInfo{
		Code:    lifecycle.ErrorCode(err),
		Message: err.Error(),
		At:      o.now().UTC(),
	}
}
