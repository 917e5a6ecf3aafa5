// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package actor binds one protocol client to one session id.
package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
)

const defaultEventBuffer = 64

// Actor wraps a ProtocolClient and turns its callbacks into an ordered event channel.
type Actor struct {
	sessionID string
	client    ports.ProtocolClient
	now       func() time.Time

	events      chan model.Event
	done        chan struct{}
	unsubscribe func()

	// sendMu serializes callback delivery against channel close.
	sendMu   sync.Mutex
	stopOnce sync.Once
	closed   bool
}

// Option customizes an Actor.
type Option func(*Actor)

// WithClock overrides the timestamp source for emitted events.
func WithClock(now func() time.Time) Option {
	return func(a *Actor) { a.now = now }
}

// New subscribes to client exactly once and returns the actor.
// buffer bounds the number of undelivered events; a full buffer applies backpressure to the client.
func New(sessionID string, client ports.ProtocolClient, buffer int, opts ...Option) *Actor {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	a := &Actor{
		sessionID: sessionID,
		client:    client,
		now:       time.Now,
		events:    make(chan model.Event, buffer),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	a.unsubscribe = client.Subscribe(a.deliver)
	return a
}

func (a *Actor) deliver(ce ports.ClientEvent) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	if a.closed {
		return
	}
	ev := model.Event{
		Type:      ce.Type,
		SessionID: a.sessionID,
		Data:      ce.Data,
		Timestamp: a.now().UTC(),
	}
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *Actor) SessionID() string { return a.sessionID }

// Events is closed once Disconnect has released the actor.
func (a *Actor) Events() <-chan model.Event { return a.events }

func (a *Actor) Connect(ctx context.Context) error {
	if err := a.client.Connect(ctx); err != nil {
		return fmt.Errorf("%w: session %s: %v", lifecycle.ErrConnectFailure, a.sessionID, err)
	}
	return nil
}

// Disconnect unsubscribes, closes the event channel and tears down the client. Safe to call more than once.
func (a *Actor) Disconnect(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		// Unblock a deliver waiting on a full buffer before taking sendMu.
		close(a.done)
		a.sendMu.Lock()
		a.closed = true
		close(a.events)
		a.sendMu.Unlock()

		if derr := a.client.Disconnect(ctx); derr != nil {
			err = fmt.Errorf("disconnect session %s: %w", a.sessionID, derr)
		}
	})
	return err
}

func (a *Actor) SendCommand(ctx context.Context, cmd model.Command) (model.CommandResult, error) {
	return a.client.SendCommand(ctx, cmd)
}

// Factory builds actors from a ports.ClientFactory.
type Factory struct {
	NewClient   ports.ClientFactory
	EventBuffer int
}

func (f Factory) NewActor(sessionID string) (ports.Actor, error) {
	if f.NewClient == nil {
		return nil, fmt.Errorf("actor factory: no client factory configured")
	}
	c, err := f.NewClient(sessionID)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", sessionID, err)
	}
	return New(sessionID, c, f.EventBuffer), nil
}

var (
	_ ports.Actor        = (*Actor)(nil)
	_ ports.ActorFactory = Factory{}
)
