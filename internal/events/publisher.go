// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package events relays session events onto per-session pub/sub channels.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/metrics"
)

const DefaultChannelPrefix = "whatsapp:events"

var ErrClosed = errors.New("event publisher closed")

// Envelope is the wire form of an event as seen by subscribers.
type Envelope struct {
	Event     model.EventType `json:"event"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode parses a payload received from a session channel.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event envelope: %w", err)
	}
	return env, nil
}

// Options configures a Publisher.
type Options struct {
	// Prefix of every session channel; defaults to DefaultChannelPrefix.
	Prefix string
	// OnClose tears down the transport (for example the Redis client) once.
	OnClose func() error
}

// Publisher is safe for concurrent use. Create one per process and inject it.
type Publisher struct {
	bus     ports.Bus
	prefix  string
	onClose func() error
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(bus ports.Bus, opts Options) *Publisher {
	if opts.Prefix == "" {
		opts.Prefix = DefaultChannelPrefix
	}
	return &Publisher{
		bus:     bus,
		prefix:  opts.Prefix,
		onClose: opts.OnClose,
		logger:  log.WithComponent("events"),
	}
}

// Channel returns the pub/sub channel of a session.
func (p *Publisher) Channel(sessionID string) string {
	return ChannelName(p.prefix, sessionID)
}

func ChannelName(prefix, sessionID string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return prefix + ":" + sessionID
}

// Publish serializes ev and sends it to the session channel. Failures are logged and
// counted; the returned error is informational only.
func (p *Publisher) Publish(ctx context.Context, ev model.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		metrics.RecordEventPublished(string(ev.Type), false)
		p.logger.Error().Err(err).
			Str(log.FieldSessionID, ev.SessionID).
			Str(log.FieldEvent, string(ev.Type)).
			Msg("failed to encode event")
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	channel := p.Channel(ev.SessionID)
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		metrics.RecordEventPublished(string(ev.Type), false)
		p.logger.Warn().Err(err).
			Str(log.FieldSessionID, ev.SessionID).
			Str(log.FieldEvent, string(ev.Type)).
			Str(log.FieldChannel, channel).
			Msg("failed to publish event")
		return err
	}
	metrics.RecordEventPublished(string(ev.Type), true)
	p.logger.Debug().
		Str(log.FieldSessionID, ev.SessionID).
		Str(log.FieldEvent, string(ev.Type)).
		Msg("event published")
	return nil
}

// Close stops publishing and releases the transport. Later calls are no-ops.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.onClose != nil {
		return p.onClose()
	}
	return nil
}

var _ ports.EventPublisher = (*Publisher)(nil)
