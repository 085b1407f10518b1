package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)}
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

func newTestLimiter(limit int, clock *fakeClock) *Limiter {
	l := NewLimiter(limit, time.Minute)
	l.now = clock.Now
	return l
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(3, clock)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.Equal(t, 0, l.Remaining())
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(2, clock)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	clock.Advance(59 * time.Second)
	assert.False(t, l.Allow(), "window has not elapsed yet")

	clock.Advance(time.Second)
	assert.True(t, l.Allow())
	assert.Equal(t, 1, l.Remaining())
}

func TestLimiterConcurrentCallersNeverExceedLimit(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(50, clock)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestLimiterResetAt(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(1, clock)

	l.Allow()
	assert.Equal(t, clock.Now().Add(time.Minute), l.ResetAt())
}
