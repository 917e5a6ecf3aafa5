// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stub provides a simulated protocol client for local runs and tests.
// It never touches the network: Connect succeeds after an optional delay and
// outgoing messages are acknowledged with generated ids.
package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
)

var ErrNotConnected = errors.New("stub: client not connected")

// Options controls simulated behaviour.
type Options struct {
	// ConnectDelay is waited before a connect succeeds.
	ConnectDelay time.Duration
	// EmitQR emits a qr event before connecting, as an unpaired device would.
	EmitQR bool
	// FailConnects makes the first N Connect calls fail.
	FailConnects int
}

// Client is a simulated ports.ProtocolClient.
type Client struct {
	sessionID string
	opts      Options

	mu        sync.Mutex
	subs      map[int]func(ports.ClientEvent)
	nextSub   int
	connected bool
	connects  int
	sent      []model.Command
}

func New(sessionID string, opts Options) *Client {
	return &Client{sessionID: sessionID, opts: opts, subs: make(map[int]func(ports.ClientEvent))}
}

func (c *Client) Subscribe(fn func(ports.ClientEvent)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Client) emit(ev ports.ClientEvent) {
	c.mu.Lock()
	fns := make([]func(ports.ClientEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connects++
	attempt := c.connects
	c.mu.Unlock()

	if c.opts.EmitQR && attempt == 1 {
		c.emit(ports.ClientEvent{Type: model.EventQR, Data: model.QRInfo{Code: "stub-qr-" + c.sessionID}})
	}
	if c.opts.ConnectDelay > 0 {
		t := time.NewTimer(c.opts.ConnectDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if attempt <= c.opts.FailConnects {
		return fmt.Errorf("stub: simulated connect failure %d/%d", attempt, c.opts.FailConnects)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.emit(ports.ClientEvent{Type: model.EventConnected})
	return nil
}

// Disconnect is deliberate and therefore silent.
func (c *Client) Disconnect(context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// Drop simulates the network closing the connection.
func (c *Client) Drop(reason string, loggedOut bool) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.emit(ports.ClientEvent{
		Type: model.EventDisconnected,
		Data: model.DisconnectInfo{Reason: reason, LoggedOut: loggedOut},
	})
}

// Receive simulates an inbound message.
func (c *Client) Receive(data any) {
	c.emit(ports.ClientEvent{Type: model.EventMessage, Data: data})
}

func (c *Client) SendCommand(ctx context.Context, cmd model.Command) (model.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return model.CommandResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return model.CommandResult{}, ErrNotConnected
	}
	if cmd.Kind == model.CmdSendMessage {
		var p model.SendMessagePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil || p.JID == "" {
			return model.CommandResult{}, fmt.Errorf("%w: send message needs a jid", lifecycle.ErrBadPayload)
		}
	}
	c.sent = append(c.sent, cmd)
	return model.CommandResult{MessageID: "STUB" + uuid.NewString()}, nil
}

// Sent returns a copy of the commands accepted so far.
func (c *Client) Sent() []model.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Command(nil), c.sent...)
}

// Connects reports how many times Connect was called.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Factory creates stub clients and remembers them by session id.
type Factory struct {
	Options Options

	mu      sync.Mutex
	clients map[string]*Client
}

func NewFactory(opts Options) *Factory {
	return &Factory{Options: opts, clients: make(map[string]*Client)}
}

// NewClient satisfies ports.ClientFactory.
func (f *Factory) NewClient(sessionID string) (ports.ProtocolClient, error) {
	c := New(sessionID, f.Options)
	f.mu.Lock()
	f.clients[sessionID] = c
	f.mu.Unlock()
	return c, nil
}

// Client returns the most recent client created for sessionID.
func (f *Factory) Client(sessionID string) (*Client, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[sessionID]
	return c, ok
}

var _ ports.ProtocolClient = (*Client)(nil)
