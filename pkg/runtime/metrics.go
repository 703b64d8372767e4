package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Recorder receives session metrics.
type Recorder interface {
	ObserveTurn(model string, usage types.Usage, duration time.Duration)
	ObserveToolCall(tool string, failed bool)
	ObserveRepair(exhausted bool)
	ObserveSession(model string, status types.Status, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTurn(string, types.Usage, time.Duration) {}
func (nopRecorder) ObserveToolCall(string, bool) {}
func (nopRecorder) ObserveRepair(bool) {}
func (nopRecorder) ObserveSession(string, types.Status, time.Duration) {}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	turnsTotal      *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	toolCallsTotal  *prometheus.CounterVec
	repairsTotal    *prometheus.CounterVec
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the session collectors with reg, or with
// the default registerer when reg is nil.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gm_turns_total",
				Help: "Total number of completion requests by model",
			},
			[]string{"model"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gm_tokens_total",
				Help: "Total number of tokens reported by the backend",
			},
			[]string{"model", "type"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gm_turn_duration_seconds",
				Help:    "Duration of completion requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gm_tool_calls_total",
				Help: "Total number of tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		repairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gm_data_repairs_total",
				Help: "Total number of data format repair requests",
			},
			[]string{"exhausted"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gm_sessions_total",
				Help: "Total number of finished sessions by status",
			},
			[]string{"model", "status"},
		),
		sessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gm_session_duration_seconds",
				Help:    "Duration of sessions in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"model"},
		),
	}
}

func (p *PrometheusRecorder) ObserveTurn(model string, usage types.Usage, duration time.Duration) {
	p.turnsTotal.WithLabelValues(model).Inc()
	p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	p.tokensTotal.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	p.turnDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveToolCall(tool string, failed bool) {
	outcome := "success"
	if failed {
		outcome = "error"
	}
	p.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveRepair(exhausted bool) {
	label := "false"
	if exhausted {
		label = "true"
	}
	p.repairsTotal.WithLabelValues(label).Inc()
}

func (p *PrometheusRecorder) ObserveSession(model string, status types.Status, duration time.Duration) {
	p.sessionsTotal.WithLabelValues(model, string(status)).Inc()
	p.sessionDuration.WithLabelValues(model).Observe(duration.Seconds())
}
