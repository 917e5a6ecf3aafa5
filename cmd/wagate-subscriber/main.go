// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command wagate-subscriber prints the events relayed for one session until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/wagate/internal/config"
	"github.com/ManuGH/wagate/internal/events"
	"github.com/ManuGH/wagate/internal/infra/bus"
	"github.com/ManuGH/wagate/internal/infra/redisclient"
	"github.com/ManuGH/wagate/internal/log"
)

func main() {
	defaults := config.Defaults()

	redisAddr := flag.String("redis", config.ParseString(config.EnvPrefix+"REDIS_ADDR", defaults.Redis.Addr), "redis address")
	prefix := flag.String("prefix", config.ParseString(config.EnvPrefix+"EVENTS_CHANNEL_PREFIX", defaults.Events.ChannelPrefix), "event channel prefix")
	session := flag.String("session", "", "session id to follow")
	flag.Parse()

	if *session == "" {
		fmt.Fprintln(os.Stderr, "-session is required")
		os.Exit(2)
	}

	log.Configure(log.Config{Level: "warn", Service: "wagate-subscriber"})
	logger := log.WithComponent("subscriber")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := redisclient.Open(ctx, redisclient.Config{Addr: *redisAddr}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	channel := events.ChannelName(*prefix, *session)
	sub, err := bus.NewRedisBus(client).Subscribe(ctx, channel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = sub.Close() }()
	fmt.Fprintf(os.Stderr, "listening on %s\n", channel)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			env, err := events.Decode(payload)
			if err != nil {
				logger.Warn().Err(err).Msg("skipping malformed event")
				continue
			}
			fmt.Printf("%s %-22s %s\n", env.Timestamp.Format(time.RFC3339), env.Event, string(env.Data))
		}
	}
}
