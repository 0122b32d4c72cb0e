// Package observe provides structured logging and OpenTelemetry metrics
// for the outbound access layer. An Observer bundles a JSON logger and a
// meter behind a single config so callers wire telemetry once.
package observe
