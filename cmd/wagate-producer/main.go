// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command wagate-producer enqueues session commands onto the job queue and
// optionally waits for their outcome.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/wagate/internal/config"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/infra/redisclient"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/queue"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defaults := config.Defaults()

	fs := flag.NewFlagSet("wagate-producer", flag.ContinueOnError)
	redisAddr := fs.String("redis", config.ParseString(config.EnvPrefix+"REDIS_ADDR", defaults.Redis.Addr), "redis address")
	queueName := fs.String("queue", config.ParseString(config.EnvPrefix+"QUEUE_NAME", defaults.Queue.Name), "queue name")
	kind := fs.String("kind", string(model.CmdStartSession), "command kind (START_SESSION, STOP_SESSION, SEND_MESSAGE, ...)")
	session := fs.String("session", "", "target session id")
	jid := fs.String("jid", "", "recipient for SEND_MESSAGE")
	text := fs.String("text", "", "text body for SEND_MESSAGE")
	raw := fs.String("data", "", "raw JSON job data; overrides -session/-jid/-text")
	wait := fs.Duration("wait", 0, "wait up to this long for the job to finish")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.Configure(log.Config{Level: "warn", Service: "wagate-producer"})
	logger := log.WithComponent("producer")

	data, err := jobData(model.CommandKind(strings.ToUpper(*kind)), *session, *jid, *text, *raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := redisclient.Open(ctx, redisclient.Config{Addr: *redisAddr}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = client.Close() }()

	q := queue.New(client, queue.Options{Name: *queueName, Prefix: defaults.Queue.Prefix})
	job, err := q.Add(ctx, strings.ToUpper(*kind), data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("enqueued %s job %s\n", job.Name, job.ID)

	if *wait <= 0 {
		return 0
	}
	done, err := awaitJob(ctx, q, job.ID, *wait)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	out, _ := json.MarshalIndent(done, "", "  ")
	fmt.Println(string(out))
	if done.State == queue.StateFailed {
		return 1
	}
	return 0
}

func jobData(kind model.CommandKind, session, jid, text, raw string) (json.RawMessage, error) {
	if raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, errors.New("-data is not valid JSON")
		}
		return json.RawMessage(raw), nil
	}
	if session == "" {
		return nil, errors.New("-session is required")
	}
	switch kind {
	case model.CmdStartSession, model.CmdStopSession:
		return json.Marshal(model.SessionTarget{SessionID: session})
	case model.CmdSendMessage:
		if jid == "" {
			return nil, errors.New("-jid is required for SEND_MESSAGE")
		}
		content, err := json.Marshal(map[string]string{"text": text})
		if err != nil {
			return nil, err
		}
		return json.Marshal(model.SendMessagePayload{SessionID: session, JID: jid, Content: content})
	default:
		return nil, fmt.Errorf("kind %s needs -data", kind)
	}
}

func awaitJob(ctx context.Context, q *queue.Queue, id string, limit time.Duration) (*queue.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.State == queue.StateCompleted || job.State == queue.StateFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("job %s still %s: %w", id, job.State, ctx.Err())
		case <-ticker.C:
		}
	}
}
