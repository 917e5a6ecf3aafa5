// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus provides the pub/sub transports used by the event publisher.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/metrics"
)

const (
	defaultSubscriberBuffer = 64
	dropLogEvery            = 100
)

// MemoryBus is an in-process pub/sub used for tests and single-binary runs.
// Publish blocks on a full subscriber until the publish context is done.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan []byte
	buffer int
	drops  atomic.Uint64
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan []byte), buffer: defaultSubscriberBuffer}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if ctx == nil {
		return errors.New("publish context is nil")
	}
	b.mu.RLock()
	chs := append([]chan []byte(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, ch := range chs {
		if err := b.deliver(ctx, ch, payload); err != nil {
			reason := dropReason(err)
			metrics.IncBusDrop("memory", reason)
			if n := b.drops.Add(1); n%dropLogEvery == 1 {
				log.L().Warn().
					Str(log.FieldChannel, topic).
					Str("reason", reason).
					Uint64("dropped", n).
					Msg("memory bus dropped message")
			}
			return fmt.Errorf("publish topic %q: %w", topic, err)
		}
	}
	return nil
}

// deliver sends unless the subscriber closed concurrently.
func (b *MemoryBus) deliver(ctx context.Context, ch chan []byte, payload []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = nil
		}
	}()
	select {
	case ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (ports.Subscription, error) {
	ch := make(chan []byte, b.buffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	return &memSub{b: b, topic: topic, ch: ch}, nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan []byte
	once  sync.Once
}

func (s *memSub) C() <-chan []byte { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
	return nil
}

var _ ports.Bus = (*MemoryBus)(nil)
