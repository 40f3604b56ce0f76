package ratelimit

import (
	"context"
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

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFakeBucket(rate float64, capacity int) (*Bucket, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New(rate, capacity)
	b.now = clock.Now
	return b, clock
}

func TestBucketStartsFull(t *testing.T) {
	b, _ := newFakeBucket(10, 5)
	assert.Equal(t, 5.0, b.Tokens())
}

func TestBucketRefillIsFractionalAndCapped(t *testing.T) {
	b, clock := newFakeBucket(4, 3)
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx, 3))
	assert.Equal(t, 0.0, b.Tokens())

	clock.Advance(125 * time.Millisecond)
	assert.InDelta(t, 0.5, b.Tokens(), 1e-9)

	clock.Advance(125 * time.Millisecond)
	assert.InDelta(t, 1.0, b.Tokens(), 1e-9)

	clock.Advance(10 * time.Second)
	assert.Equal(t, 3.0, b.Tokens())
}

func TestBucketNeverExceedsBoundsUnderConcurrency(t *testing.T) {
	b := New(500, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan float64, 1)

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			tokens := b.Tokens()
			if tokens < 0 || tokens > 5 {
				select {
				case violations <- tokens:
				default:
				}
			}
		}
	}()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				assert.NoError(t, b.Acquire(ctx, 1))
			}
		}()
	}
	wg.Wait()
	close(stop)

	select {
	case v := <-violations:
		t.Fatalf("token level left bounds: %v", v)
	default:
	}
}

func TestBucketSustainedRate(t *testing.T) {
	const (
		rate     = 200.0
		capacity = 5
		n        = 45
	)
	b := New(rate, capacity)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, b.Acquire(ctx, 1))
	}
	elapsed := time.Since(start)

	minimum := time.Duration(float64(n-capacity) / rate * float64(time.Second))
	// Allow a little scheduler slack below the theoretical bound.
	assert.GreaterOrEqual(t, elapsed, minimum-10*time.Millisecond)
}

func TestBucketCancelledWaiterConsumesNothing(t *testing.T) {
	b := New(1, 1)
	require.NoError(t, b.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The turn was released: a patient caller still gets its token.
	done := make(chan error, 1)
	go func() { done <- b.Acquire(context.Background(), 1) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire after cancelled waiter never completed")
	}
}

func TestBucketCancelledWaiterLeavesLevelIntact(t *testing.T) {
	b, clock := newFakeBucket(2, 2)
	require.NoError(t, b.Acquire(context.Background(), 2))

	clock.Advance(250 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Acquire(ctx, 2), context.Canceled)

	assert.InDelta(t, 0.5, b.Tokens(), 1e-9)
}

func TestBucketAcquireMoreThanCapacity(t *testing.T) {
	b := New(1000, 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, b.Acquire(ctx, 7))
	tokens := b.Tokens()
	assert.GreaterOrEqual(t, tokens, 0.0)
	assert.LessOrEqual(t, tokens, 2.0)
}

func TestNewPerSecond(t *testing.T) {
	b := NewPerSecond(50)
	assert.Equal(t, 50, b.Capacity())
	assert.Equal(t, 50.0, b.Rate())

	b = NewPerSecond(0.5)
	assert.Equal(t, 1, b.Capacity())
}
