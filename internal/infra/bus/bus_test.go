// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func receive(t *testing.T, sub ports.Subscription) []byte {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	s1, err := b.Subscribe(ctx, "whatsapp:events:s1")
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx, "whatsapp:events:s1")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "whatsapp:events:s2")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "whatsapp:events:s1", []byte("hello")))
	assert.Equal(t, "hello", string(receive(t, s1)))
	assert.Equal(t, "hello", string(receive(t, s2)))
	assert.Len(t, other.C(), 0)

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())
	_, ok := <-s1.C()
	assert.False(t, ok)
	require.NoError(t, b.Publish(ctx, "whatsapp:events:s1", []byte("again")))
	assert.Equal(t, "again", string(receive(t, s2)))
}

func TestMemoryBusPublishTimeoutCountsDrop(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", []byte("msg")))
	}

	before := counterValue(t, metrics.BusDroppedTotal.WithLabelValues("memory", "timeout"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", []byte("blocked"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, counterValue(t, metrics.BusDroppedTotal.WithLabelValues("memory", "timeout")), before)
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, "topic", []byte("msg"))
	require.ErrorContains(t, err, "context is nil")
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	b := NewRedisBus(client)
	ctx := context.Background()
	sub, err := b.Subscribe(ctx, "whatsapp:events:s1")
	require.NoError(t, err)

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, b.Publish(ctx, "whatsapp:events:s1", []byte(m)))
	}
	assert.Equal(t, "one", string(receive(t, sub)))
	assert.Equal(t, "two", string(receive(t, sub)))
	assert.Equal(t, "three", string(receive(t, sub)))

	require.NoError(t, sub.Close())
	_, ok := <-sub.C()
	assert.False(t, ok, "channel closed after Close")
}

func TestRedisBusPublishFailureIsReported(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()
	mr.Close()

	before := counterValue(t, metrics.BusDroppedTotal.WithLabelValues("redis", "publish_error"))
	err := NewRedisBus(client).Publish(context.Background(), "x", []byte("y"))
	require.Error(t, err)
	assert.Greater(t, counterValue(t, metrics.BusDroppedTotal.WithLabelValues("redis", "publish_error")), before)
}
