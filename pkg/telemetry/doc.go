// Package telemetry provides the observability layer for the validator:
// structured logging with zerolog, distributed tracing with OpenTelemetry,
// and Prometheus metrics.
//
// A one-shot validation run records metrics without serving an endpoint;
// watch mode exposes them over HTTP. With metrics or tracing disabled the
// recorders and span helpers are no-ops, so call sites never branch on
// configuration.
package telemetry
