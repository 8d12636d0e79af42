package client

import (
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
)

func TestSentryTrackerDisabledWithoutDSN(t *testing.T) {
	tr, err := NewSentryTracker(config.SentryConfig{})
	require.NoError(t, err)
	assert.False(t, tr.IsConfigured())
	tr.CaptureFailure(model.FailureEvent{Message: "ignored"})
	assert.True(t, tr.Flush(time.Millisecond))
}

func TestSentryTrackerCapturesEvent(t *testing.T) {
	var mu sync.Mutex
	var events []*sentry.Event

	tr, err := newSentryTracker(sentry.ClientOptions{
		Dsn: "https://public@example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil // 실제 전송하지 않음
		},
	})
	require.NoError(t, err)

	tr.CaptureFailure(model.FailureEvent{
		ID:          "e-1",
		Kind:        model.KindTransientInfra,
		ErrorType:   "NetworkError",
		Message:     "failed to fetch",
		Severity:    model.SeverityHigh,
		Component:   "checkout",
		Fingerprint: "fp-1",
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, sentry.LevelError, events[0].Level)
	assert.Equal(t, "transient_infra", events[0].Tags["kind"])
	assert.Equal(t, []string{"fp-1"}, events[0].Fingerprint)
	require.NotEmpty(t, events[0].Exception)
	var values []string
	for _, ex := range events[0].Exception {
		values = append(values, ex.Value)
	}
	assert.Contains(t, values, "NetworkError: failed to fetch")
}
