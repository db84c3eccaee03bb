// Package observability wires the service's logging, metrics, tracing,
// health probes, and shutdown coordination. Everything in here is shared
// by the HTTP surface and the background sweeper.
package observability
