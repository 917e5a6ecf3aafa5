// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"fmt"
	"sync"
)

// taskGroup tracks orchestrator-owned goroutines (event pumps, connects, backoff timers)
// and joins them on shutdown.
type taskGroup struct {
	mu      sync.Mutex
	closing bool
	running int
	wg      sync.WaitGroup
}

// Go starts fn unless the group is closing.
func (g *taskGroup) Go(fn func()) bool {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.running++
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			g.running--
			g.mu.Unlock()
			g.wg.Done()
		}()
		fn()
	}()
	return true
}

// Running reports the number of live goroutines.
func (g *taskGroup) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// CloseAndWait rejects new work and waits for running goroutines or ctx.
func (g *taskGroup) CloseAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator task drain: %d still running: %w", g.Running(), ctx.Err())
	}
}
