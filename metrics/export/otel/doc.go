// Package otel binds authcore metrics to OpenTelemetry observable
// instruments.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and
// Int64ObservableGauges per histogram bucket; a single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection cycle. Callers supply
// the Meter and keep ownership of the MeterProvider.
package otel
