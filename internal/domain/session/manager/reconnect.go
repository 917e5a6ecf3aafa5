// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/metrics"
)

// pump is the single consumer of one actor generation's events.
func (o *Orchestrator) pump(ctx context.Context, rec *sessionRecord, gen uint64, a ports.Actor) {
	events := a.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					rec.emitMu.Lock()
					o.onFailure(rec, gen, fmt.Errorf("%w: event stream closed", lifecycle.ErrActorCrash), true)
					rec.emitMu.Unlock()
				}
				return
			}
			o.handleEvent(rec, gen, ev)
		}
	}
}

func (o *Orchestrator) handleEvent(rec *sessionRecord, gen uint64, ev model.Event) {
	rec.emitMu.Lock()
	defer rec.emitMu.Unlock()

	rec.mu.Lock()
	if rec.gen != gen || !rec.state.IsActive() {
		rec.mu.Unlock()
		return
	}
	var lost *model.DisconnectInfo
	switch ev.Type {
	case model.EventConnected:
		o.transitionLocked(rec, lifecycle.EvConnected)
		rec.attempts = 0
		rec.failures = 0
		rec.lastErr = nil
		rec.bo = nil
		rec.pending = false
	case model.EventDisconnected:
		info := disconnectInfo(ev.Data)
		// A connect in flight decides the outcome on its own.
		if !rec.pending || info.LoggedOut {
			lost = &info
		}
	}
	rec.mu.Unlock()

	o.publish(ev)

	if lost != nil {
		cause := fmt.Errorf("connection closed: %s", lost.Reason)
		if lost.LoggedOut {
			cause = fmt.Errorf("logged out: %s", lost.Reason)
		}
		o.onFailure(rec, gen, cause, lost.LoggedOut)
	}
}

func disconnectInfo(data any) model.DisconnectInfo {
	switch v := data.(type) {
	case model.DisconnectInfo:
		return v
	case *model.DisconnectInfo:
		if v != nil {
			return *v
		}
	case string:
		return model.DisconnectInfo{Reason: v}
	}
	return model.DisconnectInfo{Reason: "unknown"}
}

// connect runs one connect attempt for generation gen.
func (o *Orchestrator) connect(ctx context.Context, rec *sessionRecord, gen uint64, a ports.Actor) {
	err := o.safeConnect(ctx, a)

	rec.emitMu.Lock()
	defer rec.emitMu.Unlock()

	failed := err != nil && ctx.Err() == nil
	rec.mu.Lock()
	if rec.gen == gen {
		rec.pending = false
		if failed {
			rec.failures++
		}
	}
	rec.mu.Unlock()

	if !failed {
		return
	}
	o.onFailure(rec, gen, err, errors.Is(err, lifecycle.ErrActorCrash))
}

func (o *Orchestrator) safeConnect(ctx context.Context, a ports.Actor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: connect panicked: %v", lifecycle.ErrActorCrash, r)
		}
	}()
	return a.Connect(ctx)
}

// onFailure schedules a reconnect or, once MaxAttempts consecutive connects have failed
// (or terminal is set), marks the session FAILED and emits a single error event.
// Caller holds rec.emitMu.
func (o *Orchestrator) onFailure(rec *sessionRecord, gen uint64, cause error, terminal bool) {
	rec.mu.Lock()
	if rec.gen != gen || !rec.state.IsActive() {
		rec.mu.Unlock()
		return
	}
	policy := o.Policy()
	rec.lastErr = o.errorInfo(cause)
	l := o.logger.With().Str(log.FieldSessionID, rec.id).Logger()

	if terminal || policy.MaxAttempts == 0 || rec.failures >= policy.MaxAttempts {
		o.transitionLocked(rec, lifecycle.EvTerminalFailure)
		a := rec.actor
		rec.actor = nil
		rec.pending = false
		if rec.cancel != nil {
			rec.cancel()
		}
		info := *rec.lastErr
		attempts := rec.attempts
		rec.mu.Unlock()

		metrics.IncSessionFailed(info.Code)
		l.Error().Err(cause).Uint(log.FieldAttempt, attempts).Msg("session failed")
		o.publish(model.Event{
			Type:      model.EventError,
			SessionID: rec.id,
			Data: model.ErrorEventData{
				Code:     info.Code,
				Message:  info.Message,
				Attempts: attempts,
			},
			Timestamp: info.At,
		})
		if a != nil && !o.tasks.Go(func() { o.release(a) }) {
			o.release(a)
		}
		return
	}

	rec.attempts++
	o.transitionLocked(rec, lifecycle.EvConnectionLost)
	if rec.bo == nil {
		rec.bo = policy.newBackOff()
	}
	delay := rec.bo.NextBackOff()
	rec.pending = true
	ctx, a, attempt := rec.ctx, rec.actor, rec.attempts
	rec.mu.Unlock()

	metrics.IncReconnectAttempt()
	l.Warn().Err(cause).
		Uint(log.FieldAttempt, attempt).
		Uint("max_attempts", policy.MaxAttempts).
		Dur(log.FieldDelay, delay).
		Msg("connection lost, reconnect scheduled")

	o.tasks.Go(func() { o.reconnectAfter(ctx, rec, gen, a, delay) })
}

func (o *Orchestrator) reconnectAfter(ctx context.Context, rec *sessionRecord, gen uint64, a ports.Actor, delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	rec.mu.Lock()
	current := rec.gen == gen && rec.state == model.SessionReconnecting
	rec.mu.Unlock()
	if !current {
		return
	}
	o.connect(ctx, rec, gen, a)
}
