// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectPolicy bounds automatic reconnection after a lost connection.
type ReconnectPolicy struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// Jitter is the randomization factor applied to each delay (0 disables it).
	Jitter float64
	// MaxAttempts is the number of consecutive failed connects, the initial one included,
	// after which the session is marked FAILED. Zero disables reconnecting.
	MaxAttempts uint
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    time.Minute,
		Jitter:      0.2,
		MaxAttempts: 5,
	}
}

func (p ReconnectPolicy) Validate() error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("reconnect base delay must be > 0, got %v", p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("reconnect multiplier must be >= 1, got %v", p.Multiplier)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("reconnect max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("reconnect jitter must be in [0,1), got %v", p.Jitter)
	}
	return nil
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}
