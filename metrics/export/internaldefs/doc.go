// Package internaldefs holds the shared metric name table consumed by the
// Prometheus and OTel exporters. It exists so both exporters publish
// identical names for the same engine counters.
package internaldefs
