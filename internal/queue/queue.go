// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package queue implements a durable Redis job queue with retries, delayed promotion and
// bounded retention of finished jobs.
//
// Key layout under <prefix>:<name>:
//
//	id          INCR counter for job ids
//	job:<id>    hash with the job body and bookkeeping
//	wait        list of ready ids (LPUSH in, BLMOVE out)
//	active      list of reserved ids
//	delayed     zset of ids scored by the unix-ms time they become ready
//	completed   list of finished ids, newest first
//	failed      list of permanently failed ids, newest first
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/wagate/internal/log"
)

const (
	DefaultName          = "whatsapp-jobs"
	DefaultPrefix        = "wagate"
	DefaultAttempts      = 3
	DefaultBackoff       = time.Second
	DefaultKeepCompleted = 1000
	DefaultKeepFailed    = 5000

	promoteBatch = 100
)

// ErrNoJob is returned by Reserve when no job became ready before the timeout.
var ErrNoJob = errors.New("queue: no job available")

// ErrJobNotFound is returned when a job id has no stored body.
var ErrJobNotFound = errors.New("queue: job not found")

// Job states as stored in the job hash.
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateDelayed   = "delayed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Options configures a Queue. Zero values select the defaults.
type Options struct {
	Name          string
	Prefix        string
	Attempts      int
	Backoff       time.Duration
	KeepCompleted int64
	KeepFailed    int64
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.KeepCompleted <= 0 {
		o.KeepCompleted = DefaultKeepCompleted
	}
	if o.KeepFailed <= 0 {
		o.KeepFailed = DefaultKeepFailed
	}
	return o
}

// Job is one unit of work.
type Job struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	State        string          `json:"state"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	FailedReason string          `json:"failedReason,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	FinishedAt   time.Time       `json:"finishedAt,omitzero"`
}

// Counts is a snapshot of list sizes.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type keys struct {
	root, id, wait, active, delayed, completed, failed string
}

func (k keys) job(id string) string { return k.root + ":job:" + id }

// Queue is safe for concurrent use.
type Queue struct {
	client *redis.Client
	opts   Options
	keys   keys
	logger zerolog.Logger
	now    func() time.Time
}

func New(client *redis.Client, opts Options) *Queue {
	opts = opts.withDefaults()
	root := opts.Prefix + ":" + opts.Name
	return &Queue{
		client: client,
		opts:   opts,
		keys: keys{
			root:      root,
			id:        root + ":id",
			wait:      root + ":wait",
			active:    root + ":active",
			delayed:   root + ":delayed",
			completed: root + ":completed",
			failed:    root + ":failed",
		},
		logger: log.WithComponent("queue").With().Str(log.FieldQueue, opts.Name).Logger(),
		now:    time.Now,
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.opts.Name }

// AddOption customizes a single job.
type AddOption func(*Job)

// WithAttempts overrides the retry budget of one job.
func WithAttempts(n int) AddOption {
	return func(j *Job) {
		if n > 0 {
			j.MaxAttempts = n
		}
	}
}

// Add enqueues a job named name with data encoded as JSON.
func (q *Queue) Add(ctx context.Context, name string, data any, opts ...AddOption) (*Job, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode job data: %w", err)
	}
	n, err := q.client.Incr(ctx, q.keys.id).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate job id: %w", err)
	}

	job := &Job{
		ID:          strconv.FormatInt(n, 10),
		Name:        name,
		Data:        raw,
		State:       StateWaiting,
		MaxAttempts: q.opts.Attempts,
		CreatedAt:   q.now().UTC(),
	}
	for _, o := range opts {
		o(job)
	}

	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.keys.job(job.ID), map[string]any{
			"name":         job.Name,
			"data":         string(job.Data),
			"state":        job.State,
			"attemptsMade": 0,
			"maxAttempts":  job.MaxAttempts,
			"createdAt":    job.CreatedAt.UnixMilli(),
		})
		p.LPush(ctx, q.keys.wait, job.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", name, err)
	}
	q.logger.Debug().Str(log.FieldJobID, job.ID).Str(log.FieldCommand, name).Msg("job added")
	return job, nil
}

// Reserve blocks up to timeout for the next ready job and marks it active.
func (q *Queue) Reserve(ctx context.Context, timeout time.Duration) (*Job, error) {
	if _, err := q.PromoteDelayed(ctx); err != nil {
		q.logger.Warn().Err(err).Msg("failed to promote delayed jobs")
	}

	id, err := q.client.BLMove(ctx, q.keys.wait, q.keys.active, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("reserve job: %w", err)
	}

	if err := q.client.HSet(ctx, q.keys.job(id), "state", StateActive).Err(); err != nil {
		return nil, fmt.Errorf("mark job %s active: %w", id, err)
	}
	return q.GetJob(ctx, id)
}

// Complete records result and moves the job to the completed list.
func (q *Queue) Complete(ctx context.Context, job *Job, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	now := q.now().UTC()
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.keys.active, 1, job.ID)
		p.HSet(ctx, q.keys.job(job.ID), map[string]any{
			"state":      StateCompleted,
			"result":     string(raw),
			"finishedAt": now.UnixMilli(),
		})
		p.LPush(ctx, q.keys.completed, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	job.State, job.Result, job.FinishedAt = StateCompleted, raw, now
	return q.trim(ctx, q.keys.completed, q.opts.KeepCompleted)
}

// Fail records cause. A retryable failure with attempts left is rescheduled after an
// exponential delay; anything else moves the job to the failed list.
// It reports whether the job will be retried.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error, retryable bool) (bool, error) {
	job.AttemptsMade++
	job.FailedReason = cause.Error()
	now := q.now().UTC()

	retry := retryable && job.AttemptsMade < job.MaxAttempts
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.keys.active, 1, job.ID)
		fields := map[string]any{
			"attemptsMade": job.AttemptsMade,
			"failedReason": job.FailedReason,
		}
		if retry {
			delay := q.RetryDelay(job.AttemptsMade)
			fields["state"] = StateDelayed
			p.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(now.Add(delay).UnixMilli()), Member: job.ID})
		} else {
			fields["state"] = StateFailed
			fields["finishedAt"] = now.UnixMilli()
			p.LPush(ctx, q.keys.failed, job.ID)
		}
		p.HSet(ctx, q.keys.job(job.ID), fields)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if retry {
		job.State = StateDelayed
		return true, nil
	}
	job.State, job.FinishedAt = StateFailed, now
	return false, q.trim(ctx, q.keys.failed, q.opts.KeepFailed)
}

// RetryDelay is the wait before retry number attempt (1-based).
func (q *Queue) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := q.opts.Backoff
	for i := 1; i < attempt && d < time.Hour; i++ {
		d *= 2
	}
	return d
}

var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
	redis.call('HSET', ARGV[3] .. id, 'state', 'waiting')
end
return #ids
`)

// PromoteDelayed moves due delayed jobs back to the wait list.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.keys.delayed, q.keys.wait},
		q.now().UnixMilli(), promoteBatch, q.keys.root+":job:",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return n, nil
}

// RecoverActive returns jobs left active by a previous process to the wait list.
// Call it before the first Reserve; it assumes no other consumer is running.
func (q *Queue) RecoverActive(ctx context.Context) (int, error) {
	n := 0
	for {
		id, err := q.client.LMove(ctx, q.keys.active, q.keys.wait, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("recover active jobs: %w", err)
		}
		if err := q.client.HSet(ctx, q.keys.job(id), "state", StateWaiting).Err(); err != nil {
			return n, fmt.Errorf("recover job %s: %w", id, err)
		}
		n++
	}
	if n > 0 {
		q.logger.Warn().Int("jobs", n).Msg("recovered stalled active jobs")
	}
	return n, nil
}

// Counts returns the size of every list.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	var wait, active, completed, failed *redis.IntCmd
	var delayed *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		wait = p.LLen(ctx, q.keys.wait)
		active = p.LLen(ctx, q.keys.active)
		delayed = p.ZCard(ctx, q.keys.delayed)
		completed = p.LLen(ctx, q.keys.completed)
		failed = p.LLen(ctx, q.keys.failed)
		return nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("queue counts: %w", err)
	}
	return Counts{
		Waiting:   wait.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// GetJob loads a job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	h, err := q.client.HGetAll(ctx, q.keys.job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job := &Job{
		ID:           id,
		Name:         h["name"],
		Data:         json.RawMessage(h["data"]),
		State:        h["state"],
		FailedReason: h["failedReason"],
		AttemptsMade: atoi(h["attemptsMade"]),
		MaxAttempts:  atoi(h["maxAttempts"]),
		CreatedAt:    msTime(h["createdAt"]),
		FinishedAt:   msTime(h["finishedAt"]),
	}
	if r := h["result"]; r != "" {
		job.Result = json.RawMessage(r)
	}
	return job, nil
}

// trim keeps at most keep ids in list, deleting bodies of evicted jobs.
func (q *Queue) trim(ctx context.Context, list string, keep int64) error {
	for {
		n, err := q.client.LLen(ctx, list).Result()
		if err != nil {
			return err
		}
		if n <= keep {
			return nil
		}
		id, err := q.client.RPop(ctx, list).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := q.client.Del(ctx, q.keys.job(id)).Err(); err != nil {
			return err
		}
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func msTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
