// Package metrics exposes the engine's Prometheus counters and gauges
// over /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every counter/gauge the streaming engine reports.
type Registry struct {
	reg *prometheus.Registry

	PacketsIn  *prometheus.CounterVec
	PacketsOut *prometheus.CounterVec
	CCErrors   *prometheus.CounterVec
	PIDJoins   *prometheus.CounterVec
	PIDLeaves  *prometheus.CounterVec

	SyncBufferFill  *prometheus.GaugeVec
	SyncBufferState *prometheus.GaugeVec

	ChildRestarts *prometheus.CounterVec
	ChildExits    *prometheus.CounterVec

	JobQueueOverflows prometheus.Counter
}

// New constructs a Registry with every metric registered against a
// fresh prometheus.Registry (not the global DefaultRegisterer, so
// multiple engines can coexist in one process, e.g. under test).
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		PacketsIn: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astra_packets_in_total",
			Help: "TS packets received by a streaming node, by node name.",
		}, []string{"node"}),
		PacketsOut: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astra_packets_out_total",
			Help: "TS packets emitted by a streaming node, by node name.",
		}, []string{"node"}),
		CCErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astra_cc_errors_total",
			Help: "Continuity counter discontinuities observed, by PID.",
		}, []string{"pid"}),
		PIDJoins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astra_pid_joins_total",
			Help: "PID demux join transitions (0->1), by node name.",
		}, []string{"node"}),
		PIDLeaves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astra_pid_leaves_total",
			Help: "PID demux leave transitions (1->0), by node name.",
		}, []string{"node"}),
		SyncBufferFill: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "astra_syncbuf_filled_blocks",
			Help: "Current sync buffer occupancy in blocks, by buffer name.",
		}, []string{"buffer"}),
		SyncBufferState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "astra_syncbuf_state",
			Help: "Current sync buffer state (0=empty,1=filling,2=normal,3=draining), by buffer name.",
		}, []string{"buffer"}),
		ChildRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astra_child_restarts_total",
			Help: "Child process restarts, by module name.",
		}, []string{"module"}),
		ChildExits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astra_child_exits_total",
			Help: "Child process exits, by module name and exit status.",
		}, []string{"module", "status"}),
		JobQueueOverflows: f.NewCounter(prometheus.CounterOpts{
			Name: "astra_jobqueue_overflows_total",
			Help: "Deferred-job queue overflow events (queue flushed and reset).",
		}),
	}
}

// Handler returns the HTTP handler serving this registry in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
