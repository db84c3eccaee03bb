package rbac

import (
	"net/http"

	"github.com/verdantgrid/perimeter/pkg/httputil"
	"github.com/verdantgrid/perimeter/pkg/identity"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// Middleware wires the guards into HTTP routing. Per-operation requirements
// come from a static Requirements table; the guards themselves never compute
// what an operation needs.
type Middleware struct {
	resolver     *Resolver
	requirements Requirements
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewMiddleware creates guard middleware backed by the given resolver and
// requirements table.
func NewMiddleware(resolver *Resolver, requirements Requirements, logger *observability.Logger, metrics *observability.Metrics) *Middleware {
	return &Middleware{
		resolver:     resolver,
		requirements: requirements,
		logger:       logger,
		metrics:      metrics,
	}
}

// RequireOperation guards a handler with the requirements declared for the
// named operation. Requests without an identity get 401; denied requests get
// 403 with the guard's reason.
func (m *Middleware) RequireOperation(operation string) func(http.Handler) http.Handler {
	req := m.requirements.Lookup(operation)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if req.Unrestricted() {
				next.ServeHTTP(w, r)
				return
			}

			id, ok := identity.FromRequest(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			ec := EvalContext{Identity: id, HasIdentity: true, Path: r.URL.Path}

			roleGuard := RoleGuard{Allowed: req.RequiredRoles, Logger: m.logger}
			if d := roleGuard.Evaluate(ec); !d.Allowed {
				m.observe("role", d)
				httputil.WriteForbidden(w, d.Reason)
				return
			}

			permGuard := PermissionGuard{Required: req.RequiredPermissions, Resolver: m.resolver, Logger: m.logger}
			if d := permGuard.Evaluate(ec); !d.Allowed {
				m.observe("permission", d)
				httputil.WriteForbidden(w, d.Reason)
				return
			}

			m.observe("all", allow())
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles guards a handler with an explicit allowed-role set, bypassing
// the requirements table.
func (m *Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identity.FromRequest(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			guard := RoleGuard{Allowed: roles, Logger: m.logger}
			d := guard.Evaluate(EvalContext{Identity: id, HasIdentity: true, Path: r.URL.Path})
			m.observe("role", d)
			if !d.Allowed {
				httputil.WriteForbidden(w, d.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermissions guards a handler with an explicit required-permission
// set, bypassing the requirements table.
func (m *Middleware) RequirePermissions(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identity.FromRequest(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			guard := PermissionGuard{Required: perms, Resolver: m.resolver, Logger: m.logger}
			d := guard.Evaluate(EvalContext{Identity: id, HasIdentity: true, Path: r.URL.Path})
			m.observe("permission", d)
			if !d.Allowed {
				httputil.WriteForbidden(w, d.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) observe(guard string, d Decision) {
	if m.metrics == nil {
		return
	}
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
	}
	m.metrics.AuthzDecisionsTotal.WithLabelValues(guard, outcome, string(d.Code)).Inc()
}
