// Package ratelimit bounds operation throughput per key over a sliding
// time window.
//
// The limiter keeps the timestamps of recorded operations per key. Check
// prunes timestamps older than the window and denies once the remaining
// count reaches the maximum; Record appends the current time. Check and
// Record are separate so callers can decide before acting and count after.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the current time. Tests inject a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Config configures a SlidingWindow.
type Config struct {
	Window time.Duration
	MaxOps int
}

// DefaultConfig allows 100 operations per minute per key.
func DefaultConfig() Config {
	return Config{Window: time.Minute, MaxOps: 100}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.MaxOps < 0 {
		return fmt.Errorf("max ops must be >= 0, got %d", c.MaxOps)
	}
	return nil
}

// SlidingWindow is a per-key sliding-window counter. It is safe for
// concurrent use.
type SlidingWindow struct {
	cfg   Config
	clock Clock

	mu      sync.Mutex
	entries map[string][]time.Time
}

// New creates a limiter. A nil clock uses the system clock.
func New(cfg Config, clock Clock) (*SlidingWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &SlidingWindow{
		cfg:     cfg,
		clock:   clock,
		entries: make(map[string][]time.Time),
	}, nil
}

// Check reports whether key may perform another operation.
func (l *SlidingWindow) Check(key string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.prune(key))
	if n >= l.cfg.MaxOps {
		return false, fmt.Sprintf("Rate limit exceeded: %d operations in %s", n, l.cfg.Window)
	}
	return true, ""
}

// Record counts one operation for key at the current time.
func (l *SlidingWindow) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = append(l.prune(key), l.clock.Now())
}

// Count returns the number of operations for key inside the window.
func (l *SlidingWindow) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.prune(key))
}

// prune drops timestamps at or before now-window. Caller holds mu.
func (l *SlidingWindow) prune(key string) []time.Time {
	ts := l.entries[key]
	cutoff := l.clock.Now().Add(-l.cfg.Window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	kept := append([]time.Time(nil), ts[i:]...)
	if len(kept) == 0 {
		delete(l.entries, key)
		return nil
	}
	l.entries[key] = kept
	return kept
}
