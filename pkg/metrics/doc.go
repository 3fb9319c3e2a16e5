/*
Package metrics provides Prometheus metrics collection and exposition
for fdbus's three server binaries (name server, host server, log
server) and, for every endpoint, its session/messaging counters.

# Metrics Catalog

Session/messaging:

  - fdbus_sessions_total{role}: live sessions by endpoint role
  - fdbus_reconnects_total{endpoint}: reconnect attempts by a
    client-role endpoint (name proxy, host federation proxy, log
    producer)
  - fdbus_job_queue_depth{endpoint}: current context job-queue depth
  - fdbus_jobs_processed_total{endpoint}: jobs drained from the queue
  - fdbus_broadcasts_total{group}: broadcasts fanned out, by event
    group
  - fdbus_invokes_total{status}: request/reply invocations by result
    status
  - fdbus_invoke_duration_seconds: request/reply round-trip latency

Name server:

  - fdbus_nameserver_services_total: services currently registered
  - fdbus_nameserver_raft_is_leader: 1 if this replica is raft leader

Host server:

  - fdbus_hosts_total{ready}: known hosts split by readiness
  - fdbus_heartbeat_misses_total{host}: heartbeat misses recorded
    against a host before it was kicked out

Log server:

  - fdbus_log_cache_bytes{kind}: cache byte footprint (message/trace)
  - fdbus_log_records_dropped_total{kind}: records dropped by the
    active filter set

# Usage

	import "github.com/cuemby/fdbus/pkg/metrics"

	metrics.SessionsTotal.WithLabelValues("server").Set(3)
	timer := metrics.NewTimer()
	// ... invoke ...
	timer.ObserveDuration(metrics.InvokeDuration)

	http.Handle("/metrics", metrics.Handler())

Collector periodically runs a set of Sampler closures supplied by each
server (NameServer.MetricsSampler, HostServer.MetricsSampler,
logger.Server.MetricsSampler):

	c := metrics.NewCollector(15*time.Second, nsServer.MetricsSampler(), hsServer.MetricsSampler())
	c.Start()
	defer c.Stop()

# Health

HealthHandler/ReadyHandler/LivenessHandler expose /health, /ready, and
/live. RegisterComponent/UpdateComponent feed a component's status in;
GetReadiness treats "bus" (the endpoint's own session/socket layer) and
"nameserver" (reachability of the name server) as the critical
components a binary must report before it is considered ready.
*/
package metrics
