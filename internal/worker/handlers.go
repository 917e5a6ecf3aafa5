// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/queue"
)

var ErrUnknownCommandKind = lifecycle.ErrUnknownCommandKind

// Result is the value acknowledged to the queue for a completed job.
type Result struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

const (
	StatusStarted = "started"
	StatusStopped = "stopped"
	StatusSent    = "sent"
)

type handlerFunc func(ctx context.Context, job *queue.Job) (Result, error)

func (w *Worker) handlerTable() map[model.CommandKind]handlerFunc {
	routed := w.handleRouted
	return map[model.CommandKind]handlerFunc{
		model.CmdStartSession:  w.handleStart,
		model.CmdStopSession:   w.handleStop,
		model.CmdSendMessage:   w.handleSendMessage,
		model.CmdSendMedia:     routed,
		model.CmdSendReaction:  routed,
		model.CmdSendPoll:      routed,
		model.CmdEditMessage:   routed,
		model.CmdDeleteMessage: routed,
	}
}

func (w *Worker) handleStart(ctx context.Context, job *queue.Job) (Result, error) {
	target, err := decodeTarget(job.Data)
	if err != nil {
		return Result{}, err
	}
	if err := w.sessions.StartSession(ctx, target.SessionID); err != nil {
		return Result{}, w.classify(err)
	}
	return Result{Status: StatusStarted, SessionID: target.SessionID}, nil
}

func (w *Worker) handleStop(ctx context.Context, job *queue.Job) (Result, error) {
	target, err := decodeTarget(job.Data)
	if err != nil {
		return Result{}, err
	}
	if err := w.sessions.StopSession(ctx, target.SessionID); err != nil {
		return Result{}, w.classify(err)
	}
	return Result{Status: StatusStopped, SessionID: target.SessionID}, nil
}

func (w *Worker) handleSendMessage(ctx context.Context, job *queue.Job) (Result, error) {
	var p model.SendMessagePayload
	if err := json.Unmarshal(job.Data, &p); err != nil {
		return Result{}, Permanent(fmt.Errorf("%w: %v", lifecycle.ErrBadPayload, err))
	}
	if p.SessionID == "" || p.JID == "" {
		return Result{}, Permanent(fmt.Errorf("%w: sessionId and jid are required", lifecycle.ErrBadPayload))
	}
	res, err := w.sessions.Dispatch(ctx, p.SessionID, model.Command{
		Kind:      model.CmdSendMessage,
		SessionID: p.SessionID,
		Payload:   job.Data,
	})
	if err != nil {
		return Result{}, w.classify(err)
	}
	return Result{Status: StatusSent, MessageID: res.MessageID}, nil
}

// handleRouted forwards feature commands whose payload only the protocol client understands.
func (w *Worker) handleRouted(ctx context.Context, job *queue.Job) (Result, error) {
	target, err := decodeTarget(job.Data)
	if err != nil {
		return Result{}, err
	}
	res, err := w.sessions.Dispatch(ctx, target.SessionID, model.Command{
		Kind:      model.CommandKind(job.Name),
		SessionID: target.SessionID,
		Payload:   job.Data,
	})
	if err != nil {
		return Result{}, w.classify(err)
	}
	return Result{Status: StatusSent, MessageID: res.MessageID, Data: res.Data}, nil
}

func decodeTarget(data json.RawMessage) (model.SessionTarget, error) {
	var t model.SessionTarget
	if err := json.Unmarshal(data, &t); err != nil {
		return t, Permanent(fmt.Errorf("%w: %v", lifecycle.ErrBadPayload, err))
	}
	if t.SessionID == "" {
		return t, Permanent(fmt.Errorf("%w: sessionId is required", lifecycle.ErrBadPayload))
	}
	return t, nil
}

func peekSessionID(data json.RawMessage) string {
	var t model.SessionTarget
	_ = json.Unmarshal(data, &t)
	return t.SessionID
}

// classify maps orchestrator and actor errors to queue retry semantics.
func (w *Worker) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lifecycle.ErrInvalidSessionID),
		errors.Is(err, lifecycle.ErrBadPayload),
		errors.Is(err, lifecycle.ErrUnknownCommandKind):
		return Permanent(err)
	case errors.Is(err, lifecycle.ErrSessionNotFound):
		if w.cfg.UnknownSessionPolicy == PolicyRetry {
			return Retryable(err)
		}
		return Permanent(err)
	case errors.Is(err, lifecycle.ErrSessionNotReady):
		state, _ := lifecycle.StateOf(err)
		switch {
		case state == model.SessionFailed:
			// Only a new START_SESSION revives a failed session.
			return Permanent(err)
		case state == model.SessionStarting && w.cfg.StartingPolicy == PolicyFail:
			return Permanent(err)
		}
		return Retryable(err)
	default:
		return Retryable(err)
	}
}

// JobError carries the retry decision for a failed job.
type JobError struct {
	Err       error
	Retryable bool
}

func (e *JobError) Error() string { return e.Err.Error() }
func (e *JobError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return &JobError{Err: err, Retryable: false} }

// Retryable marks err as transient.
func Retryable(err error) error { return &JobError{Err: err, Retryable: true} }

// IsRetryable reports the retry decision carried by err. Unclassified errors are retryable.
func IsRetryable(err error) bool {
	var je *JobError
	if errors.As(err, &je) {
		return je.Retryable
	}
	return true
}
