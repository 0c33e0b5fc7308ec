// Package metrics holds the Prometheus collectors shared by gateway and worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkhub"

var (
	GatewayAssignments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gateway", Name: "assignments_total",
		Help: "New session to worker assignments.",
	}, []string{"worker"})

	GatewayProxyErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gateway", Name: "proxy_errors_total",
		Help: "Requests answered with 502 because the assigned worker failed.",
	}, []string{"worker"})

	SessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "session", Name: "live",
		Help: "Sessions currently held by this worker.",
	})

	SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "session", Name: "transitions_total",
		Help: "Lifecycle state changes.",
	}, []string{"state"})

	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sync", Name: "runs_total",
		Help: "Sync pipeline runs by outcome.",
	}, []string{"result"})

	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "sync", Name: "duration_seconds",
		Help:    "Wall time of a full sync run.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	RelayMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "relay", Name: "messages_total",
		Help: "Relayed messages: in, out, duplicate.",
	}, []string{"kind"})

	FanoutDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "fanout", Name: "dropped_total",
		Help: "Frames skipped because a queue was full, by queue (subscriber, shard, sink).",
	}, []string{"queue"})
)

// Registry is private to the process so tests can read values without the default registry.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		GatewayAssignments,
		GatewayProxyErrors,
		SessionsLive,
		SessionTransitions,
		SyncRuns,
		SyncDuration,
		RelayMessages,
		FanoutDropped,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
