// Package rbac implements role-based access control for the platform.
//
// The model is deliberately coarse: a closed set of roles, a closed set of
// "category:action" permission tokens, and an immutable catalog mapping each
// role to its permission set. There is no per-subject grant storage and no
// rule engine - permissions derive transitively from the role on the caller
// identity.
//
// Components:
//
//   - Resolver: resolves a raw role claim to its effective permission set,
//     cached per role with a 5-minute TTL. Unknown roles normalize to the
//     least-privileged role rather than erroring.
//   - RoleGuard / PermissionGuard: two independent admission checks that
//     consume the caller identity attached by upstream authentication.
//   - Middleware: HTTP wiring that consults a static per-operation
//     Requirements table and responds 401/403 on failure.
//
// Guards log denials but never alert; feeding denials into the audit
// pipeline is the caller's choice.
package rbac
