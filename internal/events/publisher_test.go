// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/infra/bus"
)

type failingBus struct{}

func (failingBus) Publish(context.Context, string, []byte) error { return errors.New("broken pipe") }
func (failingBus) Subscribe(context.Context, string) (ports.Subscription, error) {
	return nil, errors.New("unsupported")
}

func next(t *testing.T, sub ports.Subscription) Envelope {
	t.Helper()
	select {
	case payload := <-sub.C():
		env, err := Decode(payload)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Envelope{}
	}
}

func TestPublishWritesEnvelopeToSessionChannel(t *testing.T) {
	b := bus.NewMemoryBus()
	p := NewPublisher(b, Options{})
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "whatsapp:events:s1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(ctx, model.Event{
		Type:      model.EventQR,
		SessionID: "s1",
		Data:      model.QRInfo{Code: "2@abc"},
		Timestamp: ts,
	}))

	env := next(t, sub)
	assert.Equal(t, model.EventQR, env.Event)
	assert.Equal(t, "s1", env.SessionID)
	assert.True(t, ts.Equal(env.Timestamp))
	assert.JSONEq(t, `{"code":"2@abc"}`, string(env.Data))
}

func TestPublishFailureIsReportedNotPanicking(t *testing.T) {
	p := NewPublisher(failingBus{}, Options{})
	err := p.Publish(context.Background(), model.Event{Type: model.EventConnected, SessionID: "s1"})
	assert.ErrorContains(t, err, "broken pipe")
}

func TestPublishAfterCloseIsRejected(t *testing.T) {
	closes := 0
	p := NewPublisher(bus.NewMemoryBus(), Options{OnClose: func() error { closes++; return nil }})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, closes)
	assert.ErrorIs(t, p.Publish(context.Background(), model.Event{SessionID: "s1"}), ErrClosed)
}

func TestConcurrentPublishersKeepPerSessionOrder(t *testing.T) {
	b := bus.NewMemoryBus()
	p := NewPublisher(b, Options{Prefix: "test:events"})
	ctx := context.Background()

	const sessions, perSession = 4, 50
	subs := make([]ports.Subscription, sessions)
	for i := range subs {
		var err error
		subs[i], err = b.Subscribe(ctx, p.Channel(string(rune('a'+i))))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for n := 0; n < perSession; n++ {
				_ = p.Publish(ctx, model.Event{Type: model.EventMessage, SessionID: id, Data: n})
			}
		}(string(rune('a' + i)))
	}

	for i, sub := range subs {
		for n := 0; n < perSession; n++ {
			env := next(t, sub)
			assert.Equal(t, string(rune('a'+i)), env.SessionID)
			var got int
			require.NoError(t, json.Unmarshal(env.Data, &got))
			assert.Equal(t, n, got)
		}
	}
	wg.Wait()
}

func TestPublishOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rb := bus.NewRedisBus(client)
	p := NewPublisher(rb, Options{OnClose: client.Close})
	ctx := context.Background()

	sub, err := rb.Subscribe(ctx, "whatsapp:events:session-test-01")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.NoError(t, p.Publish(ctx, model.Event{
		Type:      model.EventDisconnected,
		SessionID: "session-test-01",
		Data:      model.DisconnectInfo{Reason: "connection lost"},
	}))
	env := next(t, sub)
	assert.Equal(t, model.EventDisconnected, env.Event)
	assert.JSONEq(t, `{"reason":"connection lost"}`, string(env.Data))
	assert.False(t, env.Timestamp.IsZero())

	require.NoError(t, sub.Close())
	require.NoError(t, p.Close())
}
