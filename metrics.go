package httpcalc

import "github.com/prometheus/client_golang/prometheus"

// MetricLabels are the label names used by the vectors passed to RegisterMetrics.
var MetricLabels = []string{"name", "method", "path", "status"}

// NewMetrics creates the response time histogram and error counter expected by RegisterMetrics.
// The caller registers them with its prometheus.Registerer.
func NewMetrics(namespace string) (*prometheus.HistogramVec, *prometheus.CounterVec) {
	responseTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "response_time_seconds",
		Help:      "Time spent handling requests.",
		Buckets:   prometheus.DefBuckets,
	}, MetricLabels)

	errorCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Number of replies carrying an error.",
	}, MetricLabels)

	return responseTime, errorCount
}
