// Package api serves the operational HTTP endpoints of the daemon.
//
//	/health       liveness: 200 whenever the process can answer
//	/ready        readiness: 200 only when every dependency check passes
//	/metrics      Prometheus exposition
//	/stats/cache  template cache population and traffic counters
//
// The server carries no domain traffic. Batches enter through the bus
// and nothing here can mutate a job; the endpoints exist for probes,
// scrapes and operators.
package api
