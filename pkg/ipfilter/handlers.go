package ipfilter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/verdantgrid/perimeter/pkg/httputil"
	"github.com/verdantgrid/perimeter/pkg/identity"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// Handlers exposes allowlist management endpoints.
type Handlers struct {
	engine *Engine
	logger *observability.Logger
}

func NewHandlers(engine *Engine, logger *observability.Logger) *Handlers {
	return &Handlers{engine: engine, logger: logger}
}

// RegisterRoutes mounts the allowlist endpoints on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/whitelist", h.ListEntries).Methods(http.MethodGet)
	r.HandleFunc("/whitelist", h.AddEntry).Methods(http.MethodPost)
	r.HandleFunc("/whitelist/{id}", h.RemoveEntry).Methods(http.MethodDelete)
}

// ListEntries returns allowlist entries, scoped to a tenant when the
// tenant query parameter is given.
func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.ParseQueryString(r, "tenant_id", "")

	var entries []*Entry
	var err error
	if tenantID != "" {
		entries, err = h.engine.ListByTenant(r.Context(), tenantID)
	} else {
		entries, err = h.engine.List(r.Context())
	}
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("failed to list allowlist entries")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

type addEntryRequest struct {
	TenantID    string `json:"tenant_id"`
	CIDR        string `json:"cidr"`
	Description string `json:"description"`
}

// AddEntry validates and stores a new allowlist range.
func (h *Handlers) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req addEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.TenantID, "tenant_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.CIDR, "cidr") {
		return
	}

	entry := &Entry{
		TenantID:    strings.TrimSpace(req.TenantID),
		CIDR:        strings.TrimSpace(req.CIDR),
		Description: strings.TrimSpace(req.Description),
	}
	if id, ok := identity.FromContext(r.Context()); ok {
		entry.CreatedBy = id.SubjectID
	}

	if err := h.engine.Add(r.Context(), entry); err != nil {
		if errors.Is(err, ErrInvalidCIDR) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.WithContext(r.Context()).WithError(err).Error("failed to add allowlist entry")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, entry)
}

// RemoveEntry deletes an allowlist range.
func (h *Handlers) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var removedBy string
	if ident, ok := identity.FromContext(r.Context()); ok {
		removedBy = ident.SubjectID
	}

	entry, err := h.engine.Remove(r.Context(), id, removedBy)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			httputil.WriteNotFound(w, "entry not found")
			return
		}
		h.logger.WithContext(r.Context()).WithError(err).Error("failed to remove allowlist entry")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, entry)
}
