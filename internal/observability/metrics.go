// Package observability owns the Prometheus collectors exported on /metrics.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests grouped by route and status code.",
	}, []string{"method", "route", "status"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fitcoach",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	eventsPublishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Domain events handed to the publisher, by event name and result.",
	}, []string{"event", "result"})

	relayCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "events",
		Name:      "relayed_total",
		Help:      "Stream entries relayed to the realtime hub, by result.",
	}, []string{"result"})

	realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open realtime websocket connections.",
	})

	realtimeDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "realtime",
		Name:      "slow_consumers_dropped_total",
		Help:      "Connections closed because their send queue overflowed.",
	})

	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Scheduled job executions, by job and result.",
	}, []string{"job", "result"})

	lastJobGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "jobs",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful run per job.",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(
		httpRequestCounter,
		httpLatency,
		eventsPublishedCounter,
		relayCounter,
		realtimeConnections,
		realtimeDropped,
		jobRuns,
		lastJobGauge,
	)
}

func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordEventPublished(event string, err error) {
	eventsPublishedCounter.WithLabelValues(event, result(err)).Inc()
}

func RecordRelay(err error) {
	relayCounter.WithLabelValues(result(err)).Inc()
}

func ConnectionOpened() { realtimeConnections.Inc() }

func ConnectionClosed() { realtimeConnections.Dec() }

func RecordSlowConsumerDropped() { realtimeDropped.Inc() }

// RecordJobRun counts a job execution and advances its success watermark.
func RecordJobRun(job string, err error, at time.Time) {
	jobRuns.WithLabelValues(job, result(err)).Inc()
	if err == nil && !at.IsZero() {
		lastJobGauge.WithLabelValues(job).Set(float64(at.Unix()))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
