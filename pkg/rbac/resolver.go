package rbac

import (
	"sync"
	"time"

	"github.com/verdantgrid/perimeter/pkg/observability"
)

// DefaultCacheTTL is how long a resolved permission set stays cached.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	permissions []Permission
	expiresAt   time.Time
}

// Resolver resolves a raw role claim into its effective permission set.
// Results are cached per normalized role with a TTL; expired entries are
// evicted lazily on read, never swept proactively. The resolver does no
// network or storage I/O, so repeated checks on the request path stay
// sub-microsecond.
type Resolver struct {
	catalog Catalog
	ttl     time.Duration
	now     func() time.Time
	metrics *observability.Metrics

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCatalog overrides the role catalog.
func WithCatalog(c Catalog) ResolverOption {
	return func(r *Resolver) { r.catalog = c }
}

// WithCacheTTL overrides the cache TTL.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithMetrics enables cache hit and miss counters.
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver backed by the built-in catalog unless
// overridden.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog: StaticCatalog{},
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective permission set for a raw role claim. Unknown
// or missing roles silently resolve to the least-privileged set; resolution
// never fails.
func (r *Resolver) Resolve(rawRole string) []Permission {
	role := NormalizeRole(rawRole)
	key := cacheKey(role)

	r.mu.Lock()
	entry, ok := r.cache[key]
	if ok && r.now().Before(entry.expiresAt) {
		// Hand out a copy so callers cannot mutate the cached set.
		perms := clonePermissions(entry.permissions)
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.ResolverCacheHits.Inc()
		}
		return perms
	}
	if ok {
		delete(r.cache, key)
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ResolverCacheMisses.Inc()
	}

	perms := r.catalog.PermissionsForRole(role)

	r.mu.Lock()
	r.cache[key] = cacheEntry{
		permissions: perms,
		expiresAt:   r.now().Add(r.ttl),
	}
	r.mu.Unlock()

	return clonePermissions(perms)
}

func clonePermissions(perms []Permission) []Permission {
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether the role's resolved set contains p.
func (r *Resolver) HasPermission(rawRole string, p Permission) bool {
	for _, has := range r.Resolve(rawRole) {
		if has == p {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the role's resolved set contains every
// required permission. An empty requirement list is always satisfied.
func (r *Resolver) HasAllPermissions(rawRole string, required []Permission) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[Permission]struct{})
	for _, p := range r.Resolve(rawRole) {
		set[p] = struct{}{}
	}
	for _, p := range required {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

// Invalidate drops cached entries for the given roles, or clears the whole
// cache when called with no arguments. Must be called after any out-of-band
// change to the role catalog.
func (r *Resolver) Invalidate(roles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(roles) == 0 {
		r.cache = make(map[string]cacheEntry)
		return
	}
	for _, raw := range roles {
		delete(r.cache, cacheKey(NormalizeRole(raw)))
	}
}

func cacheKey(role Role) string {
	return "role:" + string(role)
}
