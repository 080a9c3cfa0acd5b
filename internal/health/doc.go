// Package health provides composable health checks and the liveness and readiness
// handlers the pack server mounts at /-/healthy and /-/ready.
//
// [ShutdownGate] fails readiness as soon as shutdown starts so load
// balancers stop routing before in-flight requests drain.
package health
