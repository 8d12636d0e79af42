package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kube-rca/bugsys/internal/model"
)

const namespace = "bugsys"

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	failuresCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_captured_total",
			Help:      "Captured failures partitioned by kind, severity and source.",
		},
		[]string{"kind", "severity", "source"},
	)

	failuresPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_persisted_total",
			Help:      "Failure persistence attempts partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	alertDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_dispatches_total",
			Help:      "Alert deliveries partitioned by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	retryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries scheduled by the self-healing orchestrator.",
		},
		[]string{"operation"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation key (0=closed, 1=half_open, 2=open).",
		},
		[]string{"operation"},
	)

	riskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prediction_risk_score",
			Help:      "Latest predictive risk score in [0,1].",
		},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_tick_seconds",
			Help:      "Predictive analysis tick latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

// Register - 수집기를 registerer에 등록. 이미 등록된 수집기는 무시
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		failuresCaptured,
		failuresPersisted,
		alertDispatches,
		retryAttempts,
		breakerState,
		riskScore,
		tickDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveCapture(kind model.FailureKind, severity model.Severity, source string) {
	if source == "" {
		source = "direct"
	}
	failuresCaptured.WithLabelValues(string(kind), string(severity), source).Inc()
}

func ObservePersist(err error) {
	failuresPersisted.WithLabelValues(outcome(err)).Inc()
}

func ObserveAlert(channel string, success bool) {
	label := OutcomeSuccess
	if !success {
		label = OutcomeError
	}
	alertDispatches.WithLabelValues(channel, label).Inc()
}

func ObserveRetry(operation string) {
	retryAttempts.WithLabelValues(operation).Inc()
}

// SetBreakerState - resilience.Breakers 전환 훅에서 호출
func SetBreakerState(operation string, state model.CircuitState) {
	var v float64
	switch state {
	case model.CircuitHalfOpen:
		v = 1
	case model.CircuitOpen:
		v = 2
	}
	breakerState.WithLabelValues(operation).Set(v)
}

func ObservePrediction(score float64, duration time.Duration) {
	riskScore.Set(score)
	if duration < 0 {
		duration = 0
	}
	tickDurationSeconds.Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
