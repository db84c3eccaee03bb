package rbac

import (
	"fmt"
	"strings"

	"github.com/verdantgrid/perimeter/pkg/identity"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// DenyCode classifies why a guard denied access. "No role assigned" and
// "role present but insufficient" are reported separately so the audit trail
// can tell a broken identity apart from a real authorization miss.
type DenyCode string

const (
	DenyNone                   DenyCode = ""
	DenyNoRole                 DenyCode = "no_role"
	DenyRoleNotAllowed         DenyCode = "role_not_allowed"
	DenyPermissionInsufficient DenyCode = "permission_insufficient"
)

// Decision is the outcome of a guard evaluation.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Code    DenyCode `json:"code,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code DenyCode, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}

// EvalContext carries the inputs a guard needs: the caller identity and the
// operation being attempted (for denial logs).
type EvalContext struct {
	Identity    identity.Identity
	HasIdentity bool
	Path        string
}

// Guard is a single admission check for a protected operation. Guards are
// side-effect free beyond logging denials; raising alerts is the audit
// pipeline's job, wired in by the caller.
type Guard interface {
	Evaluate(ec EvalContext) Decision
}

// RoleGuard allows callers whose role is a member of the declared set. An
// empty set means the operation carries no role restriction.
type RoleGuard struct {
	Allowed []Role
	Logger  *observability.Logger
}

// Evaluate implements Guard.
func (g RoleGuard) Evaluate(ec EvalContext) Decision {
	if len(g.Allowed) == 0 {
		return allow()
	}

	if !ec.HasIdentity || !ec.Identity.HasRole() {
		g.logDenial(ec, "no role assigned")
		return deny(DenyNoRole, "access denied: no role assigned")
	}

	role := NormalizeRole(ec.Identity.Role)
	for _, allowed := range g.Allowed {
		if role == allowed {
			return allow()
		}
	}

	reason := fmt.Sprintf("access denied: requires one of [%s]", joinRoles(g.Allowed))
	g.logDenial(ec, fmt.Sprintf("role %s not in [%s]", role, joinRoles(g.Allowed)))
	return deny(DenyRoleNotAllowed, reason)
}

func (g RoleGuard) logDenial(ec EvalContext, detail string) {
	if g.Logger == nil {
		return
	}
	g.Logger.WithFields(map[string]interface{}{
		"subject_id": ec.Identity.SubjectID,
		"path":       ec.Path,
	}).Warnf("role guard denied: %s", detail)
}

// PermissionGuard allows callers whose resolved permission set contains every
// required permission. An empty requirement list means no restriction.
type PermissionGuard struct {
	Required []Permission
	Resolver *Resolver
	Logger   *observability.Logger
}

// Evaluate implements Guard.
func (g PermissionGuard) Evaluate(ec EvalContext) Decision {
	if len(g.Required) == 0 {
		return allow()
	}

	if !ec.HasIdentity || !ec.Identity.HasRole() {
		g.logDenial(ec, "no role assigned")
		return deny(DenyNoRole, "access denied: no role assigned")
	}

	if g.Resolver.HasAllPermissions(ec.Identity.Role, g.Required) {
		return allow()
	}

	reason := fmt.Sprintf("access denied: requires permissions [%s]", joinPermissions(g.Required))
	g.logDenial(ec, fmt.Sprintf("role %s missing permissions [%s]",
		NormalizeRole(ec.Identity.Role), joinPermissions(g.Required)))
	return deny(DenyPermissionInsufficient, reason)
}

func (g PermissionGuard) logDenial(ec EvalContext, detail string) {
	if g.Logger == nil {
		return
	}
	g.Logger.WithFields(map[string]interface{}{
		"subject_id": ec.Identity.SubjectID,
		"path":       ec.Path,
	}).Warnf("permission guard denied: %s", detail)
}

func joinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func joinPermissions(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ", ")
}
