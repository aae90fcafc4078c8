package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echo "github.com/labstack/echo/v5"
)

// Prometheus collectors for the control plane, in the text-exposition
// format spec §6's `metrics` endpoint requires ("counters, gauges,
// histograms, and summaries ... a name{label="value"} number\n line
// format is sufficient"). Gauges are refreshed from live component state
// immediately before each scrape rather than on every state change, to
// avoid threading a metrics dependency through every call site.
var (
	executeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_execute_requests_total",
			Help: "Total execute requests by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	workerPoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcore_worker_pool_queue_depth",
			Help: "Number of enqueued jobs awaiting a worker",
		},
	)

	workerPoolActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcore_worker_pool_active_jobs",
			Help: "Number of jobs currently leased by a worker",
		},
	)

	billingModeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcore_billing_mode",
			Help: "1 for the billing service's current operating mode, 0 otherwise",
		},
		[]string{"mode"},
	)

	collabActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcore_collab_active_connections",
			Help: "Number of open collaboration WebSocket connections on this pod",
		},
	)

	collabBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcore_collab_breaker_state",
			Help: "1 for the collaboration gateway circuit breaker's current state, 0 otherwise",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(executeRequestsTotal)
	prometheus.MustRegister(workerPoolQueueDepth)
	prometheus.MustRegister(workerPoolActiveJobs)
	prometheus.MustRegister(billingModeGauge)
	prometheus.MustRegister(collabActiveConnections)
	prometheus.MustRegister(collabBreakerState)
}

var allBillingModes = []string{"normal", "degraded", "read_only", "disabled"}
var allBreakerStates = []string{"closed", "open", "half_open"}

// refreshGauges snapshots *core.Core's MetricSample feed into the
// Prometheus gauges above, just before each scrape.
func (s *Server) refreshGauges() {
	for _, sample := range s.core.Metrics() {
		switch sample.Name {
		case "worker_pool_queue_depth":
			workerPoolQueueDepth.Set(sample.Value)
		case "worker_pool_active_jobs":
			workerPoolActiveJobs.Set(sample.Value)
		case "billing_mode":
			mode := sample.Labels["mode"]
			for _, m := range allBillingModes {
				v := 0.0
				if m == mode {
					v = 1.0
				}
				billingModeGauge.WithLabelValues(m).Set(v)
			}
		case "collab_active_connections":
			collabActiveConnections.Set(sample.Value)
		case "collab_breaker_state":
			state := sample.Labels["state"]
			for _, st := range allBreakerStates {
				v := 0.0
				if st == state {
					v = 1.0
				}
				collabBreakerState.WithLabelValues(st).Set(v)
			}
		}
	}
}

// metricsHandler handles GET /metrics.
func (s *Server) metricsHandler(c *echo.Context) error {
	s.refreshGauges()
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
