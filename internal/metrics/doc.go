// Package metrics exposes Prometheus instrumentation for calls, playout,
// conversation turns and order submission.
package metrics
