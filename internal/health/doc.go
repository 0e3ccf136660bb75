// Package health provides composable probes and the liveness and readiness
// handlers served on both the public and ops listeners.
//
// Probes combine with [All] and [Any]. [Ping] bounds a dependency check
// (database, object store, event bus) with a timeout. [ShutdownGate] fails
// readiness as soon as draining starts so load balancers stop routing new
// publishes before in-flight requests finish.
package health
