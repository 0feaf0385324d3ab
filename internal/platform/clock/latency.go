package clock

import (
	"context"
	"time"
)

// Per-operation delays simulating a round trip to a backend that does not exist.
const (
	DelayShort  = 500 * time.Millisecond
	DelayList   = 600 * time.Millisecond
	DelayLookup = 700 * time.Millisecond
	DelayWrite  = 800 * time.Millisecond
	DelayBook   = 1000 * time.Millisecond
)

// Latency blocks callers for a fixed duration before an operation resolves.
type Latency struct {
	enabled bool
}

// NewLatency returns a Latency that sleeps only when enabled is true.
func NewLatency(enabled bool) *Latency {
	return &Latency{enabled: enabled}
}

// NoDelay is a disabled Latency for tests and CLI commands.
var NoDelay = NewLatency(false)

// Wait sleeps for d, or returns early with ctx.Err() if ctx is done first.
func (l *Latency) Wait(ctx context.Context, d time.Duration) error {
	if l == nil || !l.enabled || d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
