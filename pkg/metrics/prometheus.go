package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the live-ops Prometheus view alongside the durable JSONL
// Tracker: one is for per-session audit that joins with WorkLog, this one
// is for operational dashboards and alerting.
type Registry struct {
	reg *prometheus.Registry

	heartbeatTicks    *prometheus.CounterVec
	heartbeatDuration *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec

	dispatched   *prometheus.CounterVec
	busDepth     *prometheus.GaugeVec
	toolOutBytes *prometheus.CounterVec
	invocations  *prometheus.CounterVec
}

// NewRegistry builds a fresh Prometheus registry with every named-component
// metric this crew exposes.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.heartbeatTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crew", Subsystem: "heartbeat", Name: "ticks_total",
		Help: "Total heartbeat ticks run, by bot and resulting status.",
	}, []string{"bot", "status"})

	r.heartbeatDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crew", Subsystem: "heartbeat", Name: "tick_duration_seconds",
		Help:    "Heartbeat tick wall-clock duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"bot"})

	r.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crew", Subsystem: "heartbeat", Name: "circuit_breaker_open",
		Help: "1 if a bot's heartbeat circuit breaker is open, else 0.",
	}, []string{"bot"})

	r.dispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crew", Subsystem: "dispatch", Name: "messages_total",
		Help: "Total messages dispatched, by resolved target kind.",
	}, []string{"target"})

	r.busDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crew", Subsystem: "bus", Name: "queue_depth",
		Help: "Current MessageBus queue depth.",
	}, []string{"queue"})

	r.toolOutBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crew", Subsystem: "agent", Name: "tool_output_bytes_total",
		Help: "Total bytes of tool output externalized to the tool_outputs store.",
	}, []string{"tool"})

	r.invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crew", Subsystem: "invoker", Name: "invocations_total",
		Help: "Total bot-to-bot invocations, by target bot and outcome.",
	}, []string{"bot", "outcome"})

	r.reg.MustRegister(r.heartbeatTicks, r.heartbeatDuration, r.breakerState,
		r.dispatched, r.busDepth, r.toolOutBytes, r.invocations)
	return r
}

// RecordHeartbeatTick records one completed tick's status and duration.
func (r *Registry) RecordHeartbeatTick(bot, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.heartbeatTicks.WithLabelValues(bot, status).Inc()
	r.heartbeatDuration.WithLabelValues(bot).Observe(d.Seconds())
}

// SetBreakerOpen records whether bot's circuit breaker is currently open.
func (r *Registry) SetBreakerOpen(bot string, open bool) {
	if r == nil {
		return
	}
	v := 0.0
	if open {
		v = 1.0
	}
	r.breakerState.WithLabelValues(bot).Set(v)
}

// RecordDispatch records one Dispatch resolution by its target kind
// ("dm", "direct_bot", "leader_first", ...).
func (r *Registry) RecordDispatch(target string) {
	if r == nil {
		return
	}
	r.dispatched.WithLabelValues(target).Inc()
}

// SetBusDepth records a queue's current depth.
func (r *Registry) SetBusDepth(queue string, depth int) {
	if r == nil {
		return
	}
	r.busDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordToolOutputBytes records bytes externalized for a tool's output.
func (r *Registry) RecordToolOutputBytes(tool string, n int) {
	if r == nil {
		return
	}
	r.toolOutBytes.WithLabelValues(tool).Add(float64(n))
}

// RecordInvocation records one BotInvoker.Invoke outcome.
func (r *Registry) RecordInvocation(bot, outcome string) {
	if r == nil {
		return
	}
	r.invocations.WithLabelValues(bot, outcome).Inc()
}

// Handler returns an HTTP handler serving this registry in the Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
