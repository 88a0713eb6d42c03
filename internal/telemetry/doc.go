// Package telemetry provides the observability hooks injected into the loader:
// a structured slog-backed Logger, lock-free Metrics counters, and the
// OpenTelemetry tracer used for spans around loads and fetches.
//
// Every hook is optional. A nil *Logger or *Metrics is valid and records
// nothing, so components never need to guard their calls.
package telemetry
