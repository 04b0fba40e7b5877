package claims

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the claims pipeline. A nil
// *Metrics is a valid no-op receiver, so tests and dev wiring can skip
// registration.
type Metrics struct {
	WorkflowsTotal   *prometheus.CounterVec
	WorkflowDuration *prometheus.HistogramVec
	StageCallsTotal  *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	GateRejections   prometheus.Counter
	RetrieverResults prometheus.Histogram
	RouteOverrides   prometheus.Counter
	NotifyTotal      *prometheus.CounterVec
}

// NewMetrics registers and returns claims metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WorkflowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimdesk_workflows_total",
			Help: "Total workflow runs by workflow and final status.",
		}, []string{"workflow", "status"}),
		WorkflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimdesk_workflow_duration_seconds",
			Help:    "Duration of workflow runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"workflow"}),
		StageCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimdesk_stage_calls_total",
			Help: "Total agent stage invocations by stage and status.",
		}, []string{"stage", "status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimdesk_stage_duration_seconds",
			Help:    "Duration of individual agent stage calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}, []string{"stage"}),
		GateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimdesk_sql_gate_rejections_total",
			Help: "Total statements rejected by the SQL safety gate.",
		}),
		RetrieverResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimdesk_retriever_results",
			Help:    "Notes returned per similarity retrieval.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		RouteOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimdesk_route_overrides_total",
			Help: "Decisions re-routed to SIU by the fraud-risk post-condition.",
		}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimdesk_notifications_total",
			Help: "Total decision notifications by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.WorkflowsTotal,
		m.WorkflowDuration,
		m.StageCallsTotal,
		m.StageDuration,
		m.GateRejections,
		m.RetrieverResults,
		m.RouteOverrides,
		m.NotifyTotal,
	)

	return m
}

func (m *Metrics) observeWorkflow(workflow, status string, seconds float64) {
	if m == nil {
		return
	}
	m.WorkflowsTotal.WithLabelValues(workflow, status).Inc()
	m.WorkflowDuration.WithLabelValues(workflow).Observe(seconds)
}

func (m *Metrics) observeStage(stage, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StageCallsTotal.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) incGateRejection() {
	if m == nil {
		return
	}
	m.GateRejections.Inc()
}

func (m *Metrics) observeRetrieval(n int) {
	if m == nil {
		return
	}
	m.RetrieverResults.Observe(float64(n))
}

func (m *Metrics) incRouteOverride() {
	if m == nil {
		return
	}
	m.RouteOverrides.Inc()
}

func (m *Metrics) incNotify(status string) {
	if m == nil {
		return
	}
	m.NotifyTotal.WithLabelValues(status).Inc()
}
