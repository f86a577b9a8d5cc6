package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	Turns            *prometheus.CounterVec
	TurnStageLatency *prometheus.HistogramVec

	stageWindow *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Adapter errors by provider and stage.",
		}, []string{"provider", "stage"}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turn invocations by outcome.",
		}, []string{"outcome"}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Per-stage turn latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"stage"}),
		stageWindow: newTurnStageWindow(256),
	}
}

// ObserveTurnStage records one stage duration in both the histogram and the
// rolling window backing /v1/perf/latency.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Milliseconds())
	m.TurnStageLatency.WithLabelValues(stage).Observe(ms)
	m.stageWindow.Observe(stage, ms)
}

// ObserveProviderError counts one adapter failure by provider role and stage.
func (m *Metrics) ObserveProviderError(provider, stage string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, stage).Inc()
}

func (m *Metrics) ObserveTurnOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return TurnStageSnapshot{}
	}
	return m.stageWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
