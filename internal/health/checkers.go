// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func NewCheckerFunc(name string, fn func(ctx context.Context) CheckResult) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (c *CheckerFunc) Name() string                          { return c.name }
func (c *CheckerFunc) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// RedisChecker pings the Redis server backing the queue and event bus.
type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: "redis unreachable", Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// Verifier is implemented by stores that can check their own integrity.
type Verifier interface {
	Verify(ctx context.Context) error
}

// StoreChecker verifies the session snapshot store.
type StoreChecker struct {
	store Verifier
}

func NewStoreChecker(store Verifier) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "session_store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if err := c.store.Verify(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: "session store check failed", Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SessionLister exposes session snapshots.
type SessionLister interface {
	Sessions() []model.SessionInfo
}

// SessionsChecker reports sessions by state. FAILED sessions degrade health without
// making the process unready.
type SessionsChecker struct {
	sessions SessionLister
}

func NewSessionsChecker(sessions SessionLister) *SessionsChecker {
	return &SessionsChecker{sessions: sessions}
}

func (c *SessionsChecker) Name() string { return "sessions" }

func (c *SessionsChecker) Check(context.Context) CheckResult {
	byState := make(map[string]any)
	failed := 0
	for _, s := range c.sessions.Sessions() {
		n, _ := byState[string(s.State)].(int)
		byState[string(s.State)] = n + 1
		if s.State == model.SessionFailed {
			failed++
		}
	}
	if failed > 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d session(s) failed", failed),
			Details: byState,
		}
	}
	return CheckResult{Status: StatusHealthy, Details: byState}
}
