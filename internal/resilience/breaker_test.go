package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/model"
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreakers(threshold int, cooldown time.Duration) (*Breakers, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreakers(BreakerConfig{Threshold: threshold, Cooldown: cooldown, CooldownMultiplier: 2, MaxCooldown: time.Hour})
	b.now = clock.Now
	return b, clock
}

// record - closed 상태에서 허가를 받아 결과 1건 반영
func record(b *Breakers, key string, err error) {
	t, _ := b.Allow(key)
	b.Record(t, err)
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreakers(3, time.Minute)
	boom := errors.New("boom")
	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return boom
	}

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Call(context.Background(), "db", op), boom)
	}
	assert.Equal(t, model.CircuitOpen, b.State("db"))

	err := b.Call(context.Background(), "db", op)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, calls)

	// 다른 key는 영향 없음
	_, err = b.Allow("other")
	assert.NoError(t, err)
}

func TestBreakerSuccessResetsConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreakers(3, time.Minute)
	record(b, "api", errors.New("x"))
	record(b, "api", errors.New("x"))
	record(b, "api", nil)
	record(b, "api", errors.New("x"))
	record(b, "api", errors.New("x"))
	assert.Equal(t, model.CircuitClosed, b.State("api"))
}

func TestBreakerHalfOpenAllowsExactlyOneTrial(t *testing.T) {
	b, clock := newTestBreakers(1, time.Minute)
	record(b, "svc", errors.New("down"))
	require.Equal(t, model.CircuitOpen, b.State("svc"))

	clock.Advance(59 * time.Second)
	_, err := b.Allow("svc")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(time.Second)
	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Allow("svc"); err == nil {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), allowed)
	assert.Equal(t, model.CircuitHalfOpen, b.State("svc"))
}

func TestBreakerHalfOpenOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		b, clock := newTestBreakers(1, time.Minute)
		record(b, "svc", errors.New("down"))
		clock.Advance(time.Minute)
		trial, err := b.Allow("svc")
		require.NoError(t, err)
		b.Record(trial, nil)
		assert.Equal(t, model.CircuitClosed, b.State("svc"))
		_, err = b.Allow("svc")
		assert.NoError(t, err)
	})

	t.Run("failure reopens with grown cooldown", func(t *testing.T) {
		b, clock := newTestBreakers(1, time.Minute)
		record(b, "svc", errors.New("down"))
		clock.Advance(time.Minute)
		trial, err := b.Allow("svc")
		require.NoError(t, err)
		b.Record(trial, errors.New("still down"))
		assert.Equal(t, model.CircuitOpen, b.State("svc"))

		clock.Advance(time.Minute)
		_, err = b.Allow("svc")
		assert.ErrorIs(t, err, ErrCircuitOpen)
		clock.Advance(time.Minute)
		_, err = b.Allow("svc")
		assert.NoError(t, err)
	})
}

func TestBreakerTransitionHookAndSnapshot(t *testing.T) {
	b, _ := newTestBreakers(1, time.Minute)
	var transitions []string
	b.OnTransition(func(key string, from, to model.CircuitState) {
		transitions = append(transitions, key+":"+string(from)+"->"+string(to))
	})
	record(b, "b", errors.New("x"))
	record(b, "a", errors.New("x"))

	assert.Equal(t, []string{"b:closed->open", "a:closed->open"}, transitions)

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Key)
	assert.Equal(t, model.CircuitOpen, snap[0].State)
	assert.NotNil(t, snap[0].NextRetryTime)

	b.Reset("a")
	assert.Equal(t, model.CircuitClosed, b.State("a"))
}

func TestBreakerIgnoresStaleResults(t *testing.T) {
	t.Run("late success during cooldown keeps open", func(t *testing.T) {
		b, _ := newTestBreakers(2, time.Minute)
		slow, err := b.Allow("svc")
		require.NoError(t, err)
		record(b, "svc", errors.New("down"))
		record(b, "svc", errors.New("down"))
		require.Equal(t, model.CircuitOpen, b.State("svc"))

		b.Record(slow, nil)
		assert.Equal(t, model.CircuitOpen, b.State("svc"))
		_, err = b.Allow("svc")
		assert.ErrorIs(t, err, ErrCircuitOpen)
	})

	t.Run("late failure in half_open keeps trial gate", func(t *testing.T) {
		b, clock := newTestBreakers(2, time.Minute)
		slow, err := b.Allow("svc")
		require.NoError(t, err)
		record(b, "svc", errors.New("down"))
		record(b, "svc", errors.New("down"))

		clock.Advance(time.Minute)
		trial, err := b.Allow("svc")
		require.NoError(t, err)
		require.Equal(t, model.CircuitHalfOpen, b.State("svc"))

		b.Record(slow, errors.New("late"))
		assert.Equal(t, model.CircuitHalfOpen, b.State("svc"))
		_, err = b.Allow("svc")
		assert.ErrorIs(t, err, ErrCircuitOpen)

		b.Record(trial, nil)
		assert.Equal(t, model.CircuitClosed, b.State("svc"))
	})

	t.Run("ticket issued before reset", func(t *testing.T) {
		b, clock := newTestBreakers(1, time.Minute)
		record(b, "svc", errors.New("down"))
		clock.Advance(time.Minute)
		trial, err := b.Allow("svc")
		require.NoError(t, err)

		b.Reset("svc")
		b.Record(trial, errors.New("down"))
		assert.Equal(t, model.CircuitClosed, b.State("svc"))
	})
}
