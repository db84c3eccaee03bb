package identity

import (
	"net/http"
	"strings"
)

// Headers set by the authenticating gateway. The service trusts them
// only because the gateway strips client-supplied copies.
const (
	HeaderSubjectID = "X-Subject-ID"
	HeaderRole      = "X-Subject-Role"
	HeaderTenantID  = "X-Tenant-ID"
	HeaderSessionID = "X-Session-ID"
)

// Middleware reads the gateway identity headers and attaches the caller
// identity to the request context. Requests without identity headers
// pass through anonymous; the guards decide what anonymity means per
// operation.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			SubjectID: strings.TrimSpace(r.Header.Get(HeaderSubjectID)),
			Role:      strings.TrimSpace(r.Header.Get(HeaderRole)),
			TenantID:  strings.TrimSpace(r.Header.Get(HeaderTenantID)),
			SessionID: strings.TrimSpace(r.Header.Get(HeaderSessionID)),
		}
		if id.SubjectID != "" || id.Role != "" || id.TenantID != "" {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
