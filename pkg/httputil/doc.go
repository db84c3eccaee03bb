// Package httputil carries the shared HTTP plumbing: JSON response
// writers, request parsing helpers, client IP extraction, and the
// middleware chain used by the API router.
package httputil
