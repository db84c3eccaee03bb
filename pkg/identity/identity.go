package identity

import (
	"context"
	"net/http"
	"strings"
)

// Identity describes an already-authenticated caller. It is produced by the
// upstream authentication layer and attached to the request context before
// any guard runs. The fields are treated as untrusted input: role strings in
// particular may be foreign and are normalized by the rbac package.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id,omitempty"`
}

// HasRole reports whether the identity carries a non-empty role claim.
func (id Identity) HasRole() bool {
	return strings.TrimSpace(id.Role) != ""
}

type identityKey struct{}

// WithIdentity attaches the caller identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext extracts the caller identity from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// FromRequest extracts the caller identity from the request context.
func FromRequest(r *http.Request) (Identity, bool) {
	return FromContext(r.Context())
}
