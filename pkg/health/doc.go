// Package health probes the dependencies of the running service.
//
// Each dependency is wrapped in a Checker: the job store and the file
// gateway answer pings, the bus reports its connection state, and the
// scratch directory proves itself writable with a probe file. Health
// aggregates them concurrently into a Report that the ops server turns
// into /health and /ready responses; readiness requires every check to
// pass, liveness only that the process answers.
package health
