package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the console's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "restaurant_feedback",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "restaurant_feedback",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	feedbackSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "restaurant_feedback",
			Subsystem: "rating",
			Name:      "submissions_total",
			Help:      "Feedback submissions by outcome.",
		},
		[]string{"result"},
	)

	ratingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "restaurant_feedback",
			Subsystem: "rating",
			Name:      "transaction_conflicts_total",
			Help:      "Rating transactions retried after a concurrent update.",
		},
	)

	demoRequestTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "restaurant_feedback",
			Subsystem: "lifecycle",
			Name:      "demo_request_transitions_total",
			Help:      "Demo request lifecycle transitions.",
		},
		[]string{"transition"},
	)

	sideChannelTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "restaurant_feedback",
			Subsystem: "side_channel",
			Name:      "tasks_total",
			Help:      "Best-effort side channel tasks by kind and outcome.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		feedbackSubmissions,
		ratingConflicts,
		demoRequestTransitions,
		sideChannelTasks,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordFeedbackSubmission(result string) {
	feedbackSubmissions.WithLabelValues(result).Inc()
}

func RecordRatingConflict() {
	ratingConflicts.Inc()
}

func RecordDemoRequestTransition(transition string) {
	demoRequestTransitions.WithLabelValues(transition).Inc()
}

func RecordSideChannelTask(kind, result string) {
	sideChannelTasks.WithLabelValues(kind, result).Inc()
}
