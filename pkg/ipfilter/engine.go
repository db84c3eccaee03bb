package ipfilter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/verdantgrid/perimeter/pkg/audit"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// cidrMemoSize bounds the parsed-CIDR memo. Entries are tiny; this is
// far above any realistic allowlist size.
const cidrMemoSize = 4096

// CheckRequest carries everything the engine needs to decide.
type CheckRequest struct {
	IP            string
	TenantID      string
	OverrideToken string
	UserID        string
	UserAgent     string
	Endpoint      string
}

// Decision explains an allowlist verdict.
type Decision struct {
	Allowed bool
	Reason  string
}

// Decision reasons.
const (
	ReasonOverride       = "override-token"
	ReasonNoTenant       = "no-tenant"
	ReasonEmptyAllowlist = "empty-allowlist"
	ReasonMatched        = "matched"
	ReasonNotWhitelisted = "not-whitelisted"
	ReasonUnmatchableIP  = "unmatchable-ip"
)

// Engine evaluates allowlist policy and manages entries.
type Engine struct {
	store         Store
	cache         EntryCache
	memo          *lru.Cache[string, parsedCIDR]
	pipeline      *audit.Pipeline
	logger        *observability.Logger
	metrics       *observability.Metrics
	overrideToken string
	now           func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCache attaches an entry cache.
func WithCache(c EntryCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithOverrideToken sets the token that bypasses allowlist checks for
// trusted automation.
func WithOverrideToken(token string) EngineOption {
	return func(e *Engine) { e.overrideToken = token }
}

// WithMetrics attaches the metrics registry.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, pipeline *audit.Pipeline, logger *observability.Logger, opts ...EngineOption) *Engine {
	memo, _ := lru.New[string, parsedCIDR](cidrMemoSize)
	e := &Engine{
		store:    store,
		memo:     memo,
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsAllowed runs the policy chain. The order matters: an override token
// short-circuits everything, requests without a tenant are out of
// scope, and a tenant with no entries has not opted in to filtering.
// Only then is the address matched against the tenant's ranges.
func (e *Engine) IsAllowed(ctx context.Context, req CheckRequest) (Decision, error) {
	// The token may arrive in the override header or in the address slot
	// itself; internal callers that cannot set headers present it as the
	// address.
	if e.overrideToken != "" && (req.OverrideToken == e.overrideToken || req.IP == e.overrideToken) {
		return e.decide(ctx, req, Decision{Allowed: true, Reason: ReasonOverride})
	}

	if req.TenantID == "" {
		return e.decide(ctx, req, Decision{Allowed: true, Reason: ReasonNoTenant})
	}

	entries, err := e.activeEntries(ctx, req.TenantID)
	if err != nil {
		return Decision{}, err
	}
	if len(entries) == 0 {
		return e.decide(ctx, req, Decision{Allowed: true, Reason: ReasonEmptyAllowlist})
	}

	v4, ok := normalizeIPv4(req.IP)
	if !ok {
		// IPv6 sources cannot match IPv4 ranges; a tenant that opted
		// in to filtering gets those blocked rather than waved through.
		e.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"ip":        req.IP,
			"tenant_id": req.TenantID,
		}).Warn("allowlist check on address with no IPv4 form")
		return e.decide(ctx, req, Decision{Allowed: false, Reason: ReasonUnmatchableIP})
	}

	addr := ipToUint32(v4)
	for _, entry := range entries {
		rng, err := e.parse(entry.CIDR)
		if err != nil {
			e.logger.WithError(err).WithField("entry_id", entry.ID).Warn("skipping malformed allowlist entry")
			continue
		}
		if rng.contains(addr) {
			return e.decide(ctx, req, Decision{Allowed: true, Reason: ReasonMatched})
		}
	}

	return e.decide(ctx, req, Decision{Allowed: false, Reason: ReasonNotWhitelisted})
}

// decide records metrics and, for blocks, a security event.
func (e *Engine) decide(ctx context.Context, req CheckRequest, d Decision) (Decision, error) {
	if e.metrics != nil {
		outcome := "allow"
		if !d.Allowed {
			outcome = "block"
		}
		e.metrics.AllowlistDecisionsTotal.WithLabelValues(outcome).Inc()
	}

	if !d.Allowed {
		event := &audit.Event{
			EventType: audit.EventTypeIPBlocked,
			UserID:    req.UserID,
			TenantID:  req.TenantID,
			IPAddress: req.IP,
			UserAgent: req.UserAgent,
			Endpoint:  req.Endpoint,
			Details: map[string]interface{}{
				"reason": d.Reason,
			},
		}
		if err := e.pipeline.LogEvent(ctx, event); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("failed to record ip-blocked event")
		}
	}

	return d, nil
}

// activeEntries returns the tenant's active entries, the only ones that
// participate in admission. The cache holds the active set; mutations
// invalidate it.
func (e *Engine) activeEntries(ctx context.Context, tenantID string) ([]*Entry, error) {
	if e.cache != nil {
		if entries, ok := e.cache.Get(ctx, tenantID); ok {
			if e.metrics != nil {
				e.metrics.AllowlistCacheHits.Inc()
			}
			return entries, nil
		}
		if e.metrics != nil {
			e.metrics.AllowlistCacheMisses.Inc()
		}
	}

	entries, err := e.store.FindActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(ctx, tenantID, entries)
	}
	return entries, nil
}

func (e *Engine) parse(cidr string) (parsedCIDR, error) {
	if rng, ok := e.memo.Get(cidr); ok {
		return rng, nil
	}
	rng, err := parseCIDR(cidr)
	if err != nil {
		return parsedCIDR{}, err
	}
	e.memo.Add(cidr, rng)
	return rng, nil
}

// Add validates and persists a new allowlist entry.
func (e *Engine) Add(ctx context.Context, entry *Entry) error {
	if entry.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if err := ValidateCIDR(entry.CIDR); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Active = true
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = e.now().UTC()
	}

	if err := e.store.Create(ctx, entry); err != nil {
		return err
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, entry.TenantID)
	}
	return nil
}

// Remove deletes an entry and records the change as a security event,
// since shrinking an allowlist widens what gets blocked.
func (e *Engine) Remove(ctx context.Context, id string, removedBy string) (*Entry, error) {
	entry, err := e.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, entry.TenantID)
	}

	event := &audit.Event{
		EventType: audit.EventTypeIPBlocked,
		UserID:    removedBy,
		TenantID:  entry.TenantID,
		Details: map[string]interface{}{
			"status": "removed-whitelist",
			"cidr":   entry.CIDR,
			"id":     entry.ID,
		},
	}
	if err := e.pipeline.LogEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("failed to record allowlist removal event")
	}

	return entry, nil
}

// ListByTenant returns a tenant's entries, freshest first, inactive
// rows included.
func (e *Engine) ListByTenant(ctx context.Context, tenantID string) ([]*Entry, error) {
	return e.store.ListByTenant(ctx, tenantID)
}

// List returns every entry across tenants.
func (e *Engine) List(ctx context.Context) ([]*Entry, error) {
	return e.store.List(ctx)
}
