// 예측 분석 서비스 (PredictiveService)
// 주기적으로 런타임 지표를 수집해 장애 위험도를 계산하고, high 이상이면 알림 전송
//
// tick 처리 흐름:
//  1. SystemMetricsSample 수집 (메모리 %, 분당 에러 수, 지연 측정, 실패 요청 수)
//  2. 고정 크기 sliding window에 추가 (가득 차면 가장 오래된 값 제거)
//  3. 위험도 계산 (가중치 합산 후 [0,1]로 clamp, 4단계 level)
//  4. 반복 에러 패턴(detect_error_patterns) 조회 후 신뢰도 0.7 이상만 예측에 추가
//  5. predictions_log 기록 (best-effort), level >= high면 AlertService 호출
//
// tick 하나가 실패(panic 포함)해도 다음 tick은 계속 실행됨

package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
	"github.com/kube-rca/bugsys/internal/telemetry"
)

// 위험도 가중치
const (
	weightMemoryCritical = 0.3
	weightMemoryWarning  = 0.15
	weightMemoryTrend    = 0.2
	weightErrorTrend     = 0.1
	weightErrorRate      = 0.25
	weightLatencyHigh    = 0.25
	weightLatencyWarning = 0.1

	minPatternConfidence = 0.7
	predictAlertCooldown = 10 * time.Minute
	defaultTickTimeout   = 10 * time.Second
)

// predictionRepo - DB 인터페이스
type predictionRepo interface {
	InsertPrediction(ctx context.Context, r model.PredictionResult) error
	DetectErrorPatterns(ctx context.Context, minOccurrences, windowHours int) ([]model.ErrorPattern, error)
}

// captureCounter - 누적 캡처 수 (ErrorHandler)
type captureCounter interface {
	CapturedCount() uint64
}

// requestCounter - 누적 outbound 요청/실패 수 (interceptor.Transport)
type requestCounter interface {
	Counts() (requests, failures uint64)
}

// PredictiveService 구조체 정의
type PredictiveService struct {
	cfg      config.PredictiveConfig
	repo     predictionRepo
	alerts   alertSender
	healer   *resilience.Healer
	captures captureCounter
	requests requestCounter
	ping     func(ctx context.Context) error
	memory   func() (used, limit uint64)
	logger   *slog.Logger
	now      func() time.Time

	// window/latest/baseline은 mu로 보호
	mu            sync.Mutex
	window        *sampleWindow
	latest        *model.PredictionResult
	lastTick      time.Time
	lastCaptured  uint64
	lastRequests  uint64
	lastFailures  uint64
	lastAlertAt   time.Time
	lastAlertRisk model.Severity

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// PredictiveService 객체 생성
// ping은 지연 측정용 호출 (DB ping 등), nil이면 지연은 0으로 기록. 실패하면 지연을 critical 임계값으로 기록
func NewPredictiveService(cfg config.PredictiveConfig, repo predictionRepo, ping func(ctx context.Context) error, logger *slog.Logger) *PredictiveService {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 60
	}
	if cfg.PatternMinOccurs <= 0 {
		cfg.PatternMinOccurs = 3
	}
	if cfg.PatternWindowHours <= 0 {
		cfg.PatternWindowHours = 24
	}
	s := &PredictiveService{
		cfg:    cfg,
		repo:   repo,
		ping:   ping,
		logger: logger,
		now:    time.Now,
		window: newSampleWindow(cfg.Window),
	}
	s.memory = s.readRuntimeMemory
	return s
}

// WithAlerts - 알림 서비스 연결
func (s *PredictiveService) WithAlerts(a alertSender) *PredictiveService {
	s.alerts = a
	return s
}

// WithCounters - 에러/요청 카운터 연결
func (s *PredictiveService) WithCounters(captures captureCounter, requests requestCounter) *PredictiveService {
	s.captures = captures
	s.requests = requests
	return s
}

// WithHealer - 패턴 조회에 사용할 Healer
func (s *PredictiveService) WithHealer(h *resilience.Healer) *PredictiveService {
	s.healer = h
	return s
}

// Start - 주기 실행 시작. 이미 실행 중이면 무시
func (s *PredictiveService) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}

	s.resetBaseline()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)
	selfLog(ctx, s.logger, slog.LevelInfo, "Predictive monitoring started", slog.Duration("interval", s.cfg.Interval))
}

// Stop - 주기 실행 중지 후 루프 종료 대기. 여러 번 호출해도 안전
func (s *PredictiveService) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.runMu.Unlock()

	cancel()
	<-done
}

// Running - 주기 실행 여부
func (s *PredictiveService) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

func (s *PredictiveService) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Latest - 마지막 tick 결과 (없으면 nil)
func (s *PredictiveService) Latest() *model.PredictionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil
	}
	cp := *s.latest
	cp.Predictions = append([]model.Prediction(nil), s.latest.Predictions...)
	cp.Recommendations = append([]string(nil), s.latest.Recommendations...)
	return &cp
}

// Tick - 1회 수집/분석. panic과 개별 실패는 이 tick 안에서 끝남
func (s *PredictiveService) Tick(ctx context.Context) (result *model.PredictionResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to run prediction tick: panic: %v", rec))
			result = nil
		}
	}()

	timeout := s.cfg.Interval
	if timeout > defaultTickTimeout {
		timeout = defaultTickTimeout
	}
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sample := s.collect(tickCtx)

	s.mu.Lock()
	s.window.push(sample)
	samples := s.window.values()
	s.mu.Unlock()

	score, predictions, recs := ComputeRisk(samples, s.cfg)
	predictions = append(predictions, s.patternPredictions(tickCtx)...)

	r := model.PredictionResult{
		RiskScore:       score,
		RiskLevel:       RiskLevel(score),
		Predictions:     predictions,
		Recommendations: recs,
		Sample:          sample,
		Timestamp:       sample.Timestamp,
	}

	s.mu.Lock()
	s.latest = &r
	s.mu.Unlock()

	telemetry.ObservePrediction(r.RiskScore, time.Since(start))
	selfLog(ctx, s.logger, slog.LevelInfo, "Prediction tick completed",
		slog.Float64("risk_score", r.RiskScore),
		slog.String("risk_level", string(r.RiskLevel)),
		slog.Int("predictions", len(r.Predictions)),
	)

	if s.repo != nil {
		if err := s.repo.InsertPrediction(tickCtx, r); err != nil {
			selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to save prediction: %v", err))
		}
	}

	s.maybeAlert(ctx, r)
	out := r
	return &out
}

func (s *PredictiveService) resetBaseline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = s.now()
	if s.captures != nil {
		s.lastCaptured = s.captures.CapturedCount()
	}
	if s.requests != nil {
		s.lastRequests, s.lastFailures = s.requests.Counts()
	}
}

// collect - 개별 지표 수집 실패는 0으로 기록하고 계속 진행
func (s *PredictiveService) collect(ctx context.Context) model.SystemMetricsSample {
	now := s.now()
	sample := model.SystemMetricsSample{Timestamp: now.UTC()}

	if used, limit := s.memory(); limit > 0 {
		sample.MemoryUsage = float64(used) / float64(limit) * 100
	}

	if s.ping != nil {
		pingStart := time.Now()
		err := s.ping(ctx)
		sample.APILatency = float64(time.Since(pingStart).Microseconds()) / 1000
		if err != nil {
			selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to measure latency: %v", err))
			sample.FailedRequests++
			if sample.APILatency < s.cfg.LatencyCriticalMs {
				sample.APILatency = s.cfg.LatencyCriticalMs
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.lastTick).Minutes()
	if s.lastTick.IsZero() || elapsed <= 0 {
		elapsed = s.cfg.Interval.Minutes()
	}
	s.lastTick = now

	if s.captures != nil {
		count := s.captures.CapturedCount()
		sample.ErrorRate = float64(count-s.lastCaptured) / elapsed
		s.lastCaptured = count
	}
	if s.requests != nil {
		requests, failures := s.requests.Counts()
		sample.RequestRate = float64(requests-s.lastRequests) / elapsed
		sample.FailedRequests += failures - s.lastFailures
		s.lastRequests, s.lastFailures = requests, failures
	}
	return sample
}

// readRuntimeMemory - GOMEMLIMIT(또는 설정값) 대비 heap 사용량. 제한이 없으면 OS에서 받은 메모리 대비
func (s *PredictiveService) readRuntimeMemory() (used, limit uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	switch {
	case s.cfg.MemoryLimitBytes > 0:
		return m.HeapAlloc, uint64(s.cfg.MemoryLimitBytes)
	default:
		if l := debug.SetMemoryLimit(-1); l > 0 && l < math.MaxInt64 {
			return m.HeapAlloc, uint64(l)
		}
		return m.HeapAlloc, m.Sys
	}
}

func (s *PredictiveService) patternPredictions(ctx context.Context) []model.Prediction {
	if s.repo == nil {
		return nil
	}
	detect := func(ctx context.Context) ([]model.ErrorPattern, error) {
		return s.repo.DetectErrorPatterns(ctx, s.cfg.PatternMinOccurs, s.cfg.PatternWindowHours)
	}

	var (
		patterns []model.ErrorPattern
		err      error
	)
	if s.healer != nil {
		out := resilience.Execute(ctx, s.healer, "predictive:patterns", detect, resilience.Options{EnableCircuitBreaker: true})
		patterns, err = out.Value, out.Err
	} else {
		patterns, err = detect(ctx)
	}
	if err != nil {
		selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to detect error patterns: %v", err))
		return nil
	}
	return PatternPredictions(patterns, s.cfg.PatternWindowHours)
}

// maybeAlert - high 이상이면 알림. 같은 level은 cooldown 동안 한 번만, level이 올라가면 즉시
func (s *PredictiveService) maybeAlert(ctx context.Context, r model.PredictionResult) {
	if s.alerts == nil || !r.RiskLevel.AtLeast(model.SeverityHigh) {
		return
	}

	s.mu.Lock()
	escalated := r.RiskLevel.Rank() > s.lastAlertRisk.Rank()
	cooled := s.lastAlertAt.IsZero() || r.Timestamp.Sub(s.lastAlertAt) >= predictAlertCooldown
	if !escalated && !cooled {
		s.mu.Unlock()
		return
	}
	s.lastAlertAt = r.Timestamp
	s.lastAlertRisk = r.RiskLevel
	s.mu.Unlock()

	if err := s.alerts.SendAlert(ctx, PredictionAlertPayload(r)); err != nil {
		selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to send prediction alert: %v", err))
	}
}

// PredictionAlertPayload - 예측 결과로 알림 페이로드 생성
func PredictionAlertPayload(r model.PredictionResult) model.AlertPayload {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk score %.2f (%s)", r.RiskScore, r.RiskLevel)
	for _, p := range r.Predictions {
		fmt.Fprintf(&b, "\n- %s", p.Message)
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "\n* %s", rec)
	}
	return model.AlertPayload{
		Title:     fmt.Sprintf("Predicted failure risk: %s", r.RiskLevel),
		Message:   b.String(),
		Severity:  r.RiskLevel,
		Component: "predictive_service",
		Source:    "predictive",
		Timestamp: r.Timestamp,
	}
}

// RiskLevel - ≥0.7 critical, ≥0.5 high, ≥0.3 medium, 그 외 low
func RiskLevel(score float64) model.Severity {
	switch {
	case score >= 0.7:
		return model.SeverityCritical
	case score >= 0.5:
		return model.SeverityHigh
	case score >= 0.3:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// ComputeRisk - samples는 오래된 순. 마지막 sample이 현재 값
func ComputeRisk(samples []model.SystemMetricsSample, cfg config.PredictiveConfig) (float64, []model.Prediction, []string) {
	if len(samples) == 0 {
		return 0, nil, nil
	}
	cur := samples[len(samples)-1]

	var (
		score       float64
		predictions []model.Prediction
		recs        []string
	)

	switch {
	case cur.MemoryUsage > cfg.MemoryCritical:
		score += weightMemoryCritical
		predictions = append(predictions, model.Prediction{
			Type:       "memory",
			Message:    fmt.Sprintf("Memory usage %.1f%% is above critical threshold %.0f%%", cur.MemoryUsage, cfg.MemoryCritical),
			Confidence: 0.9,
			Timeframe:  "immediate",
		})
		recs = append(recs, "Investigate memory growth and consider restarting or scaling the service")
	case cur.MemoryUsage > cfg.MemoryWarning:
		score += weightMemoryWarning
		predictions = append(predictions, model.Prediction{
			Type:       "memory",
			Message:    fmt.Sprintf("Memory usage %.1f%% is above warning threshold %.0f%%", cur.MemoryUsage, cfg.MemoryWarning),
			Confidence: 0.7,
			Timeframe:  "soon",
		})
		recs = append(recs, "Review recent allocations and cache sizes")
	}

	memory := make([]float64, len(samples))
	errorRate := make([]float64, len(samples))
	for i, smp := range samples {
		memory[i] = smp.MemoryUsage
		errorRate[i] = smp.ErrorRate
	}

	if slope := Slope(memory); slope > 0 {
		score += weightMemoryTrend
		p := model.Prediction{
			Type:       "memory_trend",
			Message:    fmt.Sprintf("Memory usage is increasing (%.2f%% per sample)", slope),
			Confidence: 0.6,
		}
		if cfg.Interval > 0 && cur.MemoryUsage < cfg.MemoryCritical {
			if steps := (cfg.MemoryCritical - cur.MemoryUsage) / slope; steps < 10000 {
				p.Timeframe = (time.Duration(steps) * cfg.Interval).Round(time.Second).String()
			}
		}
		predictions = append(predictions, p)
		recs = append(recs, "Check for memory leaks in long-lived goroutines and caches")
	}

	if slope := Slope(errorRate); slope > 0 {
		score += weightErrorTrend
		predictions = append(predictions, model.Prediction{
			Type:       "error_trend",
			Message:    fmt.Sprintf("Error rate is increasing (%.2f errors/min per sample)", slope),
			Confidence: 0.6,
		})
	}

	if cur.ErrorRate > cfg.ErrorRateThreshold {
		score += weightErrorRate
		predictions = append(predictions, model.Prediction{
			Type:       "error_rate",
			Message:    fmt.Sprintf("Error rate %.1f/min is above threshold %.1f/min", cur.ErrorRate, cfg.ErrorRateThreshold),
			Confidence: 0.8,
			Timeframe:  "immediate",
		})
		recs = append(recs, "Inspect recent bug reports for a common root cause")
	}

	switch {
	case cfg.LatencyCriticalMs > 0 && cur.APILatency >= cfg.LatencyCriticalMs:
		score += weightLatencyHigh
		predictions = append(predictions, model.Prediction{
			Type:       "latency",
			Message:    fmt.Sprintf("Latency %.0fms reached critical threshold %.0fms", cur.APILatency, cfg.LatencyCriticalMs),
			Confidence: 0.8,
			Timeframe:  "immediate",
		})
		recs = append(recs, "Check database and downstream dependency health")
	case cfg.LatencyWarningMs > 0 && cur.APILatency >= cfg.LatencyWarningMs:
		score += weightLatencyWarning
		predictions = append(predictions, model.Prediction{
			Type:       "latency",
			Message:    fmt.Sprintf("Latency %.0fms reached warning threshold %.0fms", cur.APILatency, cfg.LatencyWarningMs),
			Confidence: 0.6,
			Timeframe:  "soon",
		})
	}

	return math.Max(0, math.Min(1, score)), predictions, recs
}

// PatternPredictions - 반복 패턴을 예측으로 변환. 신뢰도 min(0.5+0.1n, 0.95), 0.7 미만은 제외
func PatternPredictions(patterns []model.ErrorPattern, windowHours int) []model.Prediction {
	var out []model.Prediction
	for _, p := range patterns {
		confidence := math.Min(0.5+0.1*float64(p.Occurrences), 0.95)
		if confidence < minPatternConfidence {
			continue
		}
		out = append(out, model.Prediction{
			Type:       "recurring_error",
			Message:    fmt.Sprintf("%s occurred %d times in the last %dh: %s", p.ErrorType, p.Occurrences, windowHours, p.Message),
			Confidence: confidence,
			Timeframe:  fmt.Sprintf("next %dh", windowHours),
		})
	}
	return out
}

// Slope - 최소제곱 선형회귀 기울기 (x = 0..n-1). 2개 미만이면 0
func Slope(values []float64) float64 {
	n := float64(len(values))
	if len(values) < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// sampleWindow - 고정 크기 ring buffer
type sampleWindow struct {
	buf   []model.SystemMetricsSample
	start int
	size  int
}

func newSampleWindow(capacity int) *sampleWindow {
	return &sampleWindow{buf: make([]model.SystemMetricsSample, capacity)}
}

func (w *sampleWindow) push(s model.SystemMetricsSample) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = s
		w.size++
		return
	}
	w.buf[w.start] = s
	w.start = (w.start + 1) % len(w.buf)
}

// values - 오래된 순 복사본
func (w *sampleWindow) values() []model.SystemMetricsSample {
	out := make([]model.SystemMetricsSample, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
