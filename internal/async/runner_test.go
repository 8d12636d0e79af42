package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner() *Runner {
	return NewRunner(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
}

func TestRunnerRunsAllJobs(t *testing.T) {
	r := newTestRunner()
	var n int32
	for i := 0; i < 10; i++ {
		r.Go("count", func(ctx context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		})
	}
	r.Wait()
	assert.Equal(t, int32(10), n)
}

func TestRunnerSwallowsErrorsAndPanics(t *testing.T) {
	r := newTestRunner()
	r.Go("fails", func(ctx context.Context) error { return errors.New("db down") })
	r.Go("panics", func(ctx context.Context) error { panic("boom") })

	var ran int32
	r.Go("ok", func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})
	r.Wait()
	assert.Equal(t, int32(1), ran)
}

func TestRunnerJobHasDeadline(t *testing.T) {
	r := newTestRunner()
	var hasDeadline atomic.Bool
	r.Go("deadline", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hasDeadline.Store(ok)
		return nil
	})
	r.Wait()
	assert.True(t, hasDeadline.Load())
}

func TestRunnerCloseRejectsNewJobs(t *testing.T) {
	r := newTestRunner()
	require.NoError(t, r.Close(context.Background()))

	var ran int32
	r.Go("late", func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})
	r.Wait()
	assert.Equal(t, int32(0), ran)
}

func TestRunnerCloseTimesOut(t *testing.T) {
	r := newTestRunner()
	release := make(chan struct{})
	r.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	close(release)
	r.Wait()
}
