// Package prometheus renders authcore metrics in Prometheus text exposition
// format.
//
// [NewExporter] accepts an [authcore.Engine] and exposes an http.Handler
// that renders every counter and the authenticate-latency histogram. Counter
// names are prefixed authcore_*_total. Nothing is registered in a global
// Prometheus registry; callers mount the Handler where they want it.
package prometheus
