package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Window: 0, MaxOps: 1}, nil)
	assert.Error(t, err)

	_, err = New(Config{Window: time.Second, MaxOps: -1}, nil)
	assert.Error(t, err)
}

func TestSlidingWindow_DeniesAtMax(t *testing.T) {
	clock := newFakeClock()
	l, err := New(Config{Window: time.Minute, MaxOps: 3}, clock)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, _ := l.Check("agent-1")
		require.True(t, ok, "check %d", i)
		l.Record("agent-1")
		clock.Advance(time.Second)
	}

	ok, reason := l.Check("agent-1")
	assert.False(t, ok)
	assert.Contains(t, reason, "Rate limit exceeded")

	// Keys are independent.
	ok, _ = l.Check("agent-2")
	assert.True(t, ok)
}

func TestSlidingWindow_AllowsAfterWindowElapses(t *testing.T) {
	clock := newFakeClock()
	l, err := New(Config{Window: time.Minute, MaxOps: 2}, clock)
	require.NoError(t, err)

	l.Record("a")
	l.Record("a")
	ok, _ := l.Check("a")
	require.False(t, ok)

	clock.Advance(time.Minute)
	ok, _ = l.Check("a")
	assert.True(t, ok)
	assert.Equal(t, 0, l.Count("a"))
}

func TestSlidingWindow_SlidesPartially(t *testing.T) {
	clock := newFakeClock()
	l, err := New(Config{Window: 10 * time.Second, MaxOps: 2}, clock)
	require.NoError(t, err)

	l.Record("a")
	clock.Advance(6 * time.Second)
	l.Record("a")
	clock.Advance(5 * time.Second)

	// The first record is 11s old and falls out; the second is still in.
	assert.Equal(t, 1, l.Count("a"))
	ok, _ := l.Check("a")
	assert.True(t, ok)
}

func TestSlidingWindow_ZeroMaxAlwaysDenies(t *testing.T) {
	l, err := New(Config{Window: time.Second, MaxOps: 0}, nil)
	require.NoError(t, err)
	ok, _ := l.Check("a")
	assert.False(t, ok)
}

func TestSlidingWindow_ConcurrentRecord(t *testing.T) {
	l, err := New(Config{Window: time.Hour, MaxOps: 10000}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Record("shared")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, l.Count("shared"))
}
