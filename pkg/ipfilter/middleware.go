package ipfilter

import (
	"net/http"

	"github.com/verdantgrid/perimeter/pkg/httputil"
	"github.com/verdantgrid/perimeter/pkg/identity"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// OverrideHeader carries the allowlist bypass token for trusted
// automation.
const OverrideHeader = "X-IP-Override-Token"

// Middleware enforces the tenant allowlist on every request.
type Middleware struct {
	engine *Engine
	logger *observability.Logger
}

func NewMiddleware(engine *Engine, logger *observability.Logger) *Middleware {
	return &Middleware{engine: engine, logger: logger}
}

// Handler rejects requests from addresses outside the tenant's
// allowlist. A store failure lets the request through: the filter is
// fail-open by policy and an outage must not take the API down with it.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := CheckRequest{
			IP:            httputil.ClientIP(r),
			OverrideToken: r.Header.Get(OverrideHeader),
			UserAgent:     r.UserAgent(),
			Endpoint:      r.URL.Path,
		}
		if id, ok := identity.FromContext(r.Context()); ok {
			req.TenantID = id.TenantID
			req.UserID = id.SubjectID
		}

		decision, err := m.engine.IsAllowed(r.Context(), req)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Error("allowlist check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			httputil.WriteForbidden(w, "access denied: IP address not allowed")
			return
		}

		next.ServeHTTP(w, r)
	})
}
