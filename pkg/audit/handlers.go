package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/verdantgrid/perimeter/pkg/httputil"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// Handlers exposes the audit query and export endpoints.
type Handlers struct {
	pipeline *Pipeline
	logger   *observability.Logger
}

func NewHandlers(pipeline *Pipeline, logger *observability.Logger) *Handlers {
	return &Handlers{pipeline: pipeline, logger: logger}
}

// RegisterRoutes mounts the audit endpoints on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/audit-logs", h.QueryEvents).Methods(http.MethodGet)
	r.HandleFunc("/audit-logs/export", h.ExportEvents).Methods(http.MethodGet)
}

// QueryEvents returns stored events, newest first.
func (h *Handlers) QueryEvents(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}

	events, err := h.pipeline.Query(r.Context(), q)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("audit query failed")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// ExportEvents streams matching events in the requested format.
func (h *Handlers) ExportEvents(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}

	format := ExportFormat(httputil.ParseQueryString(r, "format", string(ExportFormatJSON)))
	switch format {
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
	default:
		httputil.WriteBadRequest(w, "format must be one of json, csv, ndjson")
		return
	}

	data, err := h.pipeline.Export(r.Context(), q, format)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("audit export failed")
		httputil.WriteInternalError(w, err)
		return
	}

	filename := "security-events-" + time.Now().UTC().Format("20060102T150405") + "." + string(format)
	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func parseQuery(w http.ResponseWriter, r *http.Request) (Query, bool) {
	var q Query

	limit, err := httputil.ParseQueryInt(r, "limit", DefaultQueryLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return q, false
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return q, false
	}

	q.Limit = limit
	q.Offset = offset
	q.UserID = httputil.ParseQueryString(r, "user_id", "")
	q.TenantID = httputil.ParseQueryString(r, "tenant_id", "")
	q.IPAddress = httputil.ParseQueryString(r, "ip", "")
	q.Severity = Severity(httputil.ParseQueryString(r, "severity", ""))

	if types := httputil.ParseQueryString(r, "event_type", ""); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.EventTypes = append(q.EventTypes, EventType(t))
			}
		}
	}

	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteBadRequest(w, "since must be RFC3339")
			return q, false
		}
		q.Since = &ts
	}
	if until := httputil.ParseQueryString(r, "until", ""); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			httputil.WriteBadRequest(w, "until must be RFC3339")
			return q, false
		}
		q.Until = &ts
	}

	return q, true
}
