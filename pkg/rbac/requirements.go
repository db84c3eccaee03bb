package rbac

// Requirement declares which roles and permissions a protected operation
// needs. Empty slices mean no restriction of that kind. The roles and
// permissions are independent gates: both must pass.
type Requirement struct {
	RequiredRoles       []Role
	RequiredPermissions []Permission
}

// Unrestricted reports whether the requirement places no restriction at all.
func (r Requirement) Unrestricted() bool {
	return len(r.RequiredRoles) == 0 && len(r.RequiredPermissions) == 0
}

// Requirements is a static table mapping operation identifiers to their
// declared access requirements. It replaces the reflective per-route
// annotations of frameworks with plain data consulted at dispatch time.
type Requirements map[string]Requirement

// Lookup returns the requirement for an operation. Operations absent from
// the table are unrestricted.
func (rs Requirements) Lookup(operation string) Requirement {
	return rs[operation]
}

// DefaultRequirements is the access table for the security admin surface.
// The allowlist and audit-log operations are admin-only, and the permission
// gate asks for admin:view-audit-logs so it holds on its own even when the
// role gate is loosened.
func DefaultRequirements() Requirements {
	return Requirements{
		"security.whitelist.list": {
			RequiredRoles:       []Role{RoleAdmin},
			RequiredPermissions: []Permission{PermissionAdminViewAuditLogs},
		},
		"security.whitelist.add": {
			RequiredRoles:       []Role{RoleAdmin},
			RequiredPermissions: []Permission{PermissionAdminViewAuditLogs},
		},
		"security.whitelist.remove": {
			RequiredRoles:       []Role{RoleAdmin},
			RequiredPermissions: []Permission{PermissionAdminViewAuditLogs},
		},
		"security.audit.query": {
			RequiredRoles:       []Role{RoleAdmin},
			RequiredPermissions: []Permission{PermissionAdminViewAuditLogs},
		},
		"security.audit.export": {
			RequiredRoles:       []Role{RoleAdmin, RoleAuditor},
			RequiredPermissions: []Permission{PermissionAdminViewAuditLogs},
		},
	}
}
