// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/metrics"
)

// RedisBus publishes to Redis pub/sub channels. Delivery is at-most-once: subscribers
// that are not connected when a message is published never see it.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
	buffer int
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client: client,
		logger: log.WithComponent("bus"),
		buffer: defaultSubscriberBuffer,
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		metrics.IncBusDrop("redis", "publish_error")
		return fmt.Errorf("redis publish %q: %w", topic, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (ports.Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %q: %w", topic, err)
	}

	s := &redisSub{
		ps:   ps,
		out:  make(chan []byte, b.buffer),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go s.forward(ps.Channel(redis.WithChannelSize(b.buffer)))
	b.logger.Debug().Str(log.FieldChannel, topic).Msg("subscribed")
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	exit chan struct{}
	once sync.Once
}

func (s *redisSub) forward(in <-chan *redis.Message) {
	defer close(s.exit)
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSub) C() <-chan []byte { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		<-s.exit
	})
	return err
}

var _ ports.Bus = (*RedisBus)(nil)
