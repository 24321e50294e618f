// Package metrics provides lock-free counters and latency histograms for
// authcore observability.
//
// Counters live in cache-line-padded uint64 slots incremented atomically.
// Histograms use 8 fixed buckets (≤5ms … +Inf). Both are allocation-free on
// the write path. The package owns storage and snapshotting only; metric
// naming and export live in metrics/export/, which reads [Registry.Snapshot]
// values.
package metrics
