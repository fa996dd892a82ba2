// Package observability provides structured logging, Prometheus
// metrics, and OpenTelemetry tracing for the search subsystem.
package observability
