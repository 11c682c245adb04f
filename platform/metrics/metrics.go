// Package metrics registers Prometheus collectors for HTTP traffic and the
// automation engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	automationItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_automation_items_total",
			Help: "Items handled by automation passes, by outcome",
		},
		[]string{"pass", "outcome"},
	)

	automationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crm_automation_run_duration_seconds",
			Help:    "Duration of a full automation run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	mergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_merges_total",
			Help: "Contact merges, by result",
		},
		[]string{"result"},
	)

	intakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_intake_total",
			Help: "Inbound contact signals, by match kind",
		},
		[]string{"matched_by"},
	)
)

// Middleware records request counts and latency. The route template is used
// as the path label so ids do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordPass adds one pass result to the item counters.
func RecordPass(pass string, processed, skipped, errs int) {
	automationItems.WithLabelValues(pass, "processed").Add(float64(processed))
	automationItems.WithLabelValues(pass, "skipped").Add(float64(skipped))
	automationItems.WithLabelValues(pass, "error").Add(float64(errs))
}

// ObserveRun records the wall time of a full automation run.
func ObserveRun(d time.Duration) {
	automationRunDuration.Observe(d.Seconds())
}

// RecordMerge counts a merge by result ("ok", "partial", "rejected").
func RecordMerge(result string) {
	mergesTotal.WithLabelValues(result).Inc()
}

// RecordIntake counts an intake resolution by how it matched.
func RecordIntake(matchedBy string) {
	intakeTotal.WithLabelValues(matchedBy).Inc()
}
