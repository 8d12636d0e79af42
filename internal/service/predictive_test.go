package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
)

type fakeCaptureCounter struct{ n atomic.Uint64 }

func (f *fakeCaptureCounter) CapturedCount() uint64 { return f.n.Load() }

type fakeRequestCounter struct{ requests, failures atomic.Uint64 }

func (f *fakeRequestCounter) Counts() (uint64, uint64) {
	return f.requests.Load(), f.failures.Load()
}

type fakePredictionRepo struct {
	mu         sync.Mutex
	saved      []model.PredictionResult
	patterns   []model.ErrorPattern
	insertErr  error
	patternErr error
}

func (f *fakePredictionRepo) InsertPrediction(ctx context.Context, r model.PredictionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakePredictionRepo) DetectErrorPatterns(ctx context.Context, minOccurrences, windowHours int) ([]model.ErrorPattern, error) {
	return f.patterns, f.patternErr
}

func testPredictiveConfig() config.PredictiveConfig {
	return config.PredictiveConfig{
		Interval:           time.Minute,
		Window:             10,
		MemoryWarning:      80,
		MemoryCritical:     90,
		LatencyWarningMs:   2000,
		LatencyCriticalMs:  5000,
		ErrorRateThreshold: 5,
		PatternMinOccurs:   3,
		PatternWindowHours: 24,
	}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  model.Severity
	}{
		{0, model.SeverityLow},
		{0.29, model.SeverityLow},
		{0.3, model.SeverityMedium},
		{0.5, model.SeverityHigh},
		{0.69, model.SeverityHigh},
		{0.7, model.SeverityCritical},
		{1, model.SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevel(tt.score), "score=%v", tt.score)
	}
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, 1.0, Slope([]float64{1, 2, 3, 4}), 1e-9)
	assert.InDelta(t, -2.0, Slope([]float64{10, 8, 6}), 1e-9)
	assert.Zero(t, Slope([]float64{5, 5, 5}))
	assert.Zero(t, Slope([]float64{5}))
	assert.Zero(t, Slope(nil))
}

func TestComputeRisk(t *testing.T) {
	cfg := testPredictiveConfig()

	tests := []struct {
		name    string
		samples []model.SystemMetricsSample
		want    float64
	}{
		{
			name:    "healthy",
			samples: []model.SystemMetricsSample{{MemoryUsage: 40, APILatency: 100, ErrorRate: 0}},
			want:    0,
		},
		{
			name:    "memory warning",
			samples: []model.SystemMetricsSample{{MemoryUsage: 85}},
			want:    0.15,
		},
		{
			name:    "memory critical latency critical error rate",
			samples: []model.SystemMetricsSample{{MemoryUsage: 95, APILatency: 6000, ErrorRate: 10}},
			want:    0.8,
		},
		{
			name:    "latency warning",
			samples: []model.SystemMetricsSample{{APILatency: 3000}},
			want:    0.1,
		},
		{
			name:    "latency at critical threshold",
			samples: []model.SystemMetricsSample{{APILatency: 5000}},
			want:    0.25,
		},
		{
			name:    "latency at warning threshold",
			samples: []model.SystemMetricsSample{{APILatency: 2000}},
			want:    0.1,
		},
		{
			name: "memory trend only",
			samples: []model.SystemMetricsSample{
				{MemoryUsage: 40}, {MemoryUsage: 45}, {MemoryUsage: 50},
			},
			want: 0.2,
		},
		{
			name: "everything clamps to one",
			samples: []model.SystemMetricsSample{
				{MemoryUsage: 70, ErrorRate: 1},
				{MemoryUsage: 85, ErrorRate: 4},
				{MemoryUsage: 96, ErrorRate: 12, APILatency: 9000},
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _, _ := ComputeRisk(tt.samples, cfg)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestComputeRiskEmpty(t *testing.T) {
	score, preds, recs := ComputeRisk(nil, testPredictiveConfig())
	assert.Zero(t, score)
	assert.Empty(t, preds)
	assert.Empty(t, recs)
}

func TestPatternPredictions(t *testing.T) {
	patterns := []model.ErrorPattern{
		{ErrorType: "TypeError", Message: "x is undefined", Occurrences: 1},
		{ErrorType: "NetworkError", Message: "failed to fetch", Occurrences: 3},
		{ErrorType: "HTTPError", Message: "status 503", Occurrences: 20},
	}

	preds := PatternPredictions(patterns, 24)

	require.Len(t, preds, 2)
	assert.Equal(t, "recurring_error", preds[0].Type)
	assert.InDelta(t, 0.8, preds[0].Confidence, 1e-9)
	assert.Contains(t, preds[0].Message, "NetworkError occurred 3 times in the last 24h")
	assert.InDelta(t, 0.95, preds[1].Confidence, 1e-9)
}

func TestSampleWindowEvictsOldest(t *testing.T) {
	w := newSampleWindow(3)
	for i := 1; i <= 5; i++ {
		w.push(model.SystemMetricsSample{MemoryUsage: float64(i)})
	}

	values := w.values()
	require.Len(t, values, 3)
	assert.Equal(t, 3.0, values[0].MemoryUsage)
	assert.Equal(t, 4.0, values[1].MemoryUsage)
	assert.Equal(t, 5.0, values[2].MemoryUsage)
}

type predictiveFixture struct {
	svc      *PredictiveService
	repo     *fakePredictionRepo
	alerts   *fakeAlertSender
	captures *fakeCaptureCounter
	requests *fakeRequestCounter
	clock    time.Time
	memory   float64
}

func newPredictiveFixture() *predictiveFixture {
	f := &predictiveFixture{
		repo:     &fakePredictionRepo{},
		alerts:   &fakeAlertSender{},
		captures: &fakeCaptureCounter{},
		requests: &fakeRequestCounter{},
		clock:    t0,
		memory:   50,
	}
	f.svc = NewPredictiveService(testPredictiveConfig(), f.repo, nil, discardLogger()).
		WithAlerts(f.alerts).
		WithCounters(f.captures, f.requests)
	f.svc.now = func() time.Time { return f.clock }
	f.svc.memory = func() (uint64, uint64) { return uint64(f.memory * 10), 1000 }
	return f
}

func TestTickComputesSampleAndPersists(t *testing.T) {
	f := newPredictiveFixture()
	f.repo.patterns = []model.ErrorPattern{{ErrorType: "TypeError", Message: "x", Occurrences: 4}}
	f.captures.n.Store(3)
	f.requests.requests.Store(120)
	f.requests.failures.Store(2)

	r := f.svc.Tick(context.Background())

	require.NotNil(t, r)
	assert.InDelta(t, 50.0, r.Sample.MemoryUsage, 1e-9)
	assert.InDelta(t, 3.0, r.Sample.ErrorRate, 1e-9)
	assert.InDelta(t, 120.0, r.Sample.RequestRate, 1e-9)
	assert.Equal(t, uint64(2), r.Sample.FailedRequests)
	assert.Equal(t, model.SeverityLow, r.RiskLevel)
	require.Len(t, r.Predictions, 1)
	assert.Equal(t, "recurring_error", r.Predictions[0].Type)

	assert.Len(t, f.repo.saved, 1)
	assert.Empty(t, f.alerts.sent())
	assert.Equal(t, r.RiskScore, f.svc.Latest().RiskScore)
}

func TestTickAlertsOnHighRiskWithCooldown(t *testing.T) {
	f := newPredictiveFixture()
	f.memory = 95

	// 1분에 100건 → error rate 100/min, memory critical → 0.55 high
	f.captures.n.Store(100)
	r := f.svc.Tick(context.Background())
	require.NotNil(t, r)
	assert.Equal(t, model.SeverityHigh, r.RiskLevel)
	require.Len(t, f.alerts.sent(), 1)
	assert.Equal(t, model.SeverityHigh, f.alerts.sent()[0].Severity)
	assert.Equal(t, "predictive", f.alerts.sent()[0].Source)

	// 같은 level은 cooldown 동안 재알림 없음
	f.clock = f.clock.Add(time.Minute)
	f.captures.n.Store(200)
	r = f.svc.Tick(context.Background())
	require.NotNil(t, r)
	assert.Equal(t, model.SeverityHigh, r.RiskLevel)
	assert.Len(t, f.alerts.sent(), 1)

	// level 상승은 즉시 알림 (memory 증가 추세 추가 → critical)
	f.clock = f.clock.Add(time.Minute)
	f.captures.n.Store(300)
	f.memory = 99
	r = f.svc.Tick(context.Background())
	require.NotNil(t, r)
	assert.Equal(t, model.SeverityCritical, r.RiskLevel)
	assert.Len(t, f.alerts.sent(), 2)
}

func TestTickSurvivesFailures(t *testing.T) {
	f := newPredictiveFixture()
	f.repo.insertErr = errors.New("db down")
	f.repo.patternErr = errors.New("db down")
	f.svc.ping = func(ctx context.Context) error { return errors.New("ping failed") }

	r := f.svc.Tick(context.Background())

	require.NotNil(t, r)
	assert.Equal(t, uint64(1), r.Sample.FailedRequests)
	assert.InDelta(t, 5000.0, r.Sample.APILatency, 1e-9)
	var latency bool
	for _, p := range r.Predictions {
		assert.NotEqual(t, "recurring_error", p.Type)
		if p.Type == "latency" {
			latency = true
		}
	}
	// ping 실패는 critical 지연으로 취급
	assert.True(t, latency)
	assert.InDelta(t, weightLatencyHigh, r.RiskScore, 1e-9)
	assert.Equal(t, model.SeverityLow, r.RiskLevel)
}

func TestTickRecoversPanic(t *testing.T) {
	f := newPredictiveFixture()
	f.svc.memory = func() (uint64, uint64) { panic("read failed") }

	assert.NotPanics(t, func() {
		assert.Nil(t, f.svc.Tick(context.Background()))
	})

	f.svc.memory = func() (uint64, uint64) { return 100, 1000 }
	assert.NotNil(t, f.svc.Tick(context.Background()))
}

func TestStartStopIdempotent(t *testing.T) {
	cfg := testPredictiveConfig()
	cfg.Interval = 5 * time.Millisecond
	svc := NewPredictiveService(cfg, &fakePredictionRepo{}, nil, discardLogger())

	svc.Start(context.Background())
	svc.Start(context.Background())
	assert.True(t, svc.Running())

	require.Eventually(t, func() bool { return svc.Latest() != nil }, time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.Running())

	// 재시작 가능
	svc.Start(context.Background())
	assert.True(t, svc.Running())
	svc.Stop()
}
