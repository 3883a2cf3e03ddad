package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicemarket",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "servicemarket",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	votesCast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicemarket",
			Subsystem: "votes",
			Name:      "cast_total",
			Help:      "Votes cast, by item type and outcome (created, unchanged, flipped, error).",
		},
		[]string{"kind", "outcome"},
	)

	grants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicemarket",
			Subsystem: "permissions",
			Name:      "grants_total",
			Help:      "Permission grant attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	gateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicemarket",
			Subsystem: "gate",
			Name:      "checks_total",
			Help:      "Authorization gate decisions (cache_hit, store_hit, denied, unauthenticated, error).",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, votesCast, grants, gateChecks)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordVote(kind, outcome string) {
	votesCast.WithLabelValues(kind, outcome).Inc()
}

func RecordGrant(outcome string) {
	grants.WithLabelValues(outcome).Inc()
}

func RecordGateCheck(result string) {
	gateChecks.WithLabelValues(result).Inc()
}
