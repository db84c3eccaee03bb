// Package audit implements the security event pipeline: typed events
// with severity defaults, an append-only PostgreSQL store, best-effort
// webhook alerting, export in several formats, and retention sweeping
// with optional S3 archiving.
package audit
