// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/metrics"
)

// sessionRecord is the live, mutable state of one session.
//
// Lock order: emitMu, then mu, then Orchestrator.mu.
type sessionRecord struct {
	id string

	// emitMu serializes event publication so subscribers observe emission order.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     model.SessionState
	actor     ports.Actor
	attempts  uint
	// failures counts consecutive failed connects since the last successful one.
	failures  uint
	lastErr   *model.ErrorInfo
	createdAt time.Time
	updatedAt time.Time

	// gen identifies the current actor generation; goroutines of older generations
	// compare it before touching the record.
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	pumpDone chan struct{}
	// pending is set while a connect is scheduled or in flight.
	pending bool
	bo      *backoff.ExponentialBackOff

	stopped chan struct{}
	removed bool
}

func newSessionRecord(id string, now time.Time) *sessionRecord {
	return &sessionRecord{
		id:        id,
		state:     model.SessionIdle,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *sessionRecord) infoLocked() model.SessionInfo {
	info := model.SessionInfo{
		SessionID:         r.id,
		State:             r.state,
		ReconnectAttempts: r.attempts,
		CreatedAt:         r.createdAt,
		UpdatedAt:         r.updatedAt,
	}
	if r.lastErr != nil {
		e := *r.lastErr
		info.LastError = &e
	}
	return info
}

// transitionLocked applies ev to rec through the lifecycle table. Caller holds rec.mu.
func (o *Orchestrator) transitionLocked(rec *sessionRecord, ev lifecycle.EventKind) bool {
	from := rec.state
	to, err := lifecycle.Dispatch(from, ev)
	if err != nil {
		o.logger.Debug().Err(err).Str(log.FieldSessionID, rec.id).Msg("transition rejected")
		return false
	}
	rec.state = to
	rec.updatedAt = o.now().UTC()

	if from != to {
		metrics.RecordSessionTransition(string(from), string(to))
		o.logger.Info().
			Str(log.FieldSessionID, rec.id).
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Str(log.FieldEvent, ev.String()).
			Uint(log.FieldAttempt, rec.attempts).
			Msg("session state changed")
	}
	o.persistLocked(rec)
	return true
}

func (o *Orchestrator) persistLocked(rec *sessionRecord) {
	if o.store == nil || rec.state == model.SessionStopped {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
	defer cancel()
	if err := o.store.PutSession(ctx, rec.infoLocked()); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldSessionID, rec.id).Msg("failed to persist session snapshot")
	}
}

func (o *Orchestrator) forgetLocked(rec *sessionRecord) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
	defer cancel()
	if err := o.store.DeleteSession(ctx, rec.id); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldSessionID, rec.id).Msg("failed to delete session snapshot")
	}
}
