package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request timeout and Redis availability metrics
var (
	RequestTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_request_timeout_total",
		Help: "Total number of requests that exceeded the request timeout",
	})

	RequestTimeoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_timeout_duration_seconds",
		Help:    "Duration of requests that timed out",
		Buckets: []float64{1, 5, 10, 15, 30, 60},
	}, []string{"method", "path"})

	RedisAvailableGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_available",
		Help: "Whether Redis is currently reachable (1) or degraded (0)",
	})
)

// RecordRequestTimeout records a request timeout
func RecordRequestTimeout(duration time.Duration, method, path string) {
	RequestTimeoutTotal.Inc()
	RequestTimeoutDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRedisAvailable records Redis availability
func RecordRedisAvailable(available bool) {
	if available {
		RedisAvailableGauge.Set(1)
	} else {
		RedisAvailableGauge.Set(0)
	}
}
