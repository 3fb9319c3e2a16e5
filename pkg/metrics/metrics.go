package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Endpoint/session metrics
	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fdbus_sessions_total",
			Help: "Total number of live sessions by endpoint role",
		},
		[]string{"role"},
	)

	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdbus_reconnects_total",
			Help: "Total reconnect attempts by a client-role endpoint",
		},
		[]string{"endpoint"},
	)

	// Job queue / worker pool metrics
	JobQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fdbus_job_queue_depth",
			Help: "Current depth of a context's job queue",
		},
		[]string{"endpoint"},
	)

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdbus_jobs_processed_total",
			Help: "Total jobs drained from a context's job queue",
		},
		[]string{"endpoint"},
	)

	// Messaging metrics
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdbus_broadcasts_total",
			Help: "Total broadcasts fanned out by an object, by event group",
		},
		[]string{"group"},
	)

	InvokesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdbus_invokes_total",
			Help: "Total request/reply invocations, by result status",
		},
		[]string{"status"},
	)

	InvokeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fdbus_invoke_duration_seconds",
			Help:    "Request/reply round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Name server metrics
	NameServiceRegisteredTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fdbus_nameserver_services_total",
			Help: "Total number of services currently registered",
		},
	)

	NameServerRaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fdbus_nameserver_raft_is_leader",
			Help: "Whether this name server replica is the Raft leader (1=leader, 0=follower)",
		},
	)

	// Host server metrics
	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fdbus_hosts_total",
			Help: "Total known hosts by readiness",
		},
		[]string{"ready"},
	)

	HeartbeatMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdbus_heartbeat_misses_total",
			Help: "Total missed heartbeats recorded against a host",
		},
		[]string{"host"},
	)

	// Log server metrics
	LogCacheBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fdbus_log_cache_bytes",
			Help: "Current byte footprint of the log server's record cache",
		},
		[]string{"kind"},
	)

	LogRecordsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdbus_log_records_dropped_total",
			Help: "Total records dropped by the active filter set",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(ReconnectsTotal)
	prometheus.MustRegister(JobQueueDepth)
	prometheus.MustRegister(JobsProcessedTotal)
	prometheus.MustRegister(BroadcastsTotal)
	prometheus.MustRegister(InvokesTotal)
	prometheus.MustRegister(InvokeDuration)
	prometheus.MustRegister(NameServiceRegisteredTotal)
	prometheus.MustRegister(NameServerRaftLeader)
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(HeartbeatMissesTotal)
	prometheus.MustRegister(LogCacheBytes)
	prometheus.MustRegister(LogRecordsDroppedTotal)
}

// Handler returns the Prometheus HTTP scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and recording the elapsed
// duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
