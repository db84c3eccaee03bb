package rbac

import "strings"

// Role is one of the platform's fixed set of roles. Roles are used as cache
// keys and are immutable once defined.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
	RoleAuditor Role = "auditor"
)

// LeastPrivileged is the role unknown or missing role claims normalize to.
// Fail-safe default: a caller with a foreign role gets viewer access, never
// an error and never elevated access.
const LeastPrivileged = RoleViewer

// Roles returns all defined roles.
func Roles() []Role {
	return []Role{RoleAdmin, RoleAnalyst, RoleManager, RoleViewer, RoleAuditor}
}

// Valid reports whether r is a member of the role enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleManager, RoleViewer, RoleAuditor:
		return true
	}
	return false
}

// NormalizeRole lowercases a raw role claim and coerces anything outside the
// enumeration to the least-privileged role.
func NormalizeRole(raw string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return LeastPrivileged
	}
	return r
}

// Permission is a "category:action" token drawn from a fixed set.
// Permissions are never combined dynamically; they are only looked up from
// the role catalog.
type Permission string

const (
	PermissionPortfolioView    Permission = "portfolio:view"
	PermissionPortfolioExport  Permission = "portfolio:export"
	PermissionPortfolioAnalyze Permission = "portfolio:analyze"

	PermissionCreditView              Permission = "credit:view"
	PermissionCreditPurchase          Permission = "credit:purchase"
	PermissionCreditRetire            Permission = "credit:retire"
	PermissionCreditApproveRetirement Permission = "credit:approve-retirement"

	PermissionReportView     Permission = "report:view"
	PermissionReportGenerate Permission = "report:generate"
	PermissionReportExport   Permission = "report:export"
	PermissionReportSchedule Permission = "report:schedule"

	PermissionTeamView        Permission = "team:view"
	PermissionTeamInvite      Permission = "team:invite"
	PermissionTeamManageRoles Permission = "team:manage-roles"
	PermissionTeamRemove      Permission = "team:remove"

	PermissionComplianceView   Permission = "compliance:view"
	PermissionComplianceSubmit Permission = "compliance:submit"
	PermissionComplianceAudit  Permission = "compliance:audit"

	PermissionSettingsView    Permission = "settings:view"
	PermissionSettingsUpdate  Permission = "settings:update"
	PermissionSettingsBilling Permission = "settings:billing"

	PermissionAdminUserManage    Permission = "admin:user-manage"
	PermissionAdminViewAuditLogs Permission = "admin:view-audit-logs"
)

// AllPermissions returns the full permission universe. The admin role's set
// equals this list.
func AllPermissions() []Permission {
	return []Permission{
		PermissionPortfolioView,
		PermissionPortfolioExport,
		PermissionPortfolioAnalyze,
		PermissionCreditView,
		PermissionCreditPurchase,
		PermissionCreditRetire,
		PermissionCreditApproveRetirement,
		PermissionReportView,
		PermissionReportGenerate,
		PermissionReportExport,
		PermissionReportSchedule,
		PermissionTeamView,
		PermissionTeamInvite,
		PermissionTeamManageRoles,
		PermissionTeamRemove,
		PermissionComplianceView,
		PermissionComplianceSubmit,
		PermissionComplianceAudit,
		PermissionSettingsView,
		PermissionSettingsUpdate,
		PermissionSettingsBilling,
		PermissionAdminUserManage,
		PermissionAdminViewAuditLogs,
	}
}

// rolePermissions is the role catalog: a total map from every role to a
// non-empty permission set. Loaded once, never mutated at runtime.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: AllPermissions(),
	RoleAnalyst: {
		PermissionPortfolioView,
		PermissionPortfolioExport,
		PermissionPortfolioAnalyze,
		PermissionCreditView,
		PermissionReportView,
		PermissionReportGenerate,
		PermissionReportExport,
		PermissionComplianceView,
		PermissionTeamView,
	},
	RoleManager: {
		PermissionPortfolioView,
		PermissionPortfolioExport,
		PermissionCreditView,
		PermissionCreditPurchase,
		PermissionCreditRetire,
		PermissionCreditApproveRetirement,
		PermissionReportView,
		PermissionReportGenerate,
		PermissionComplianceView,
		PermissionComplianceSubmit,
		PermissionTeamView,
	},
	RoleViewer: {
		PermissionPortfolioView,
		PermissionCreditView,
		PermissionReportView,
		PermissionComplianceView,
		PermissionTeamView,
	},
	RoleAuditor: {
		PermissionPortfolioView,
		PermissionPortfolioExport,
		PermissionReportView,
		PermissionReportExport,
		PermissionComplianceView,
		PermissionComplianceAudit,
		PermissionAdminViewAuditLogs,
	},
}

// Catalog maps roles to permission sets. It exists as an interface so tests
// can observe when the resolver recomputes instead of serving from cache.
type Catalog interface {
	PermissionsForRole(role Role) []Permission
}

// StaticCatalog serves the built-in role catalog.
type StaticCatalog struct{}

// PermissionsForRole returns a copy of the catalog entry for role. Unknown
// roles fall back to the least-privileged set.
func (StaticCatalog) PermissionsForRole(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = rolePermissions[LeastPrivileged]
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
