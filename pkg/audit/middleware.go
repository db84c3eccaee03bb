package audit

import (
	"net/http"

	"github.com/verdantgrid/perimeter/pkg/httputil"
	"github.com/verdantgrid/perimeter/pkg/identity"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// Middleware records an audit-log event for every mutating request
// after the response is written. Read-only traffic is skipped unless
// logAllRequests is set.
type Middleware struct {
	pipeline       *Pipeline
	logger         *observability.Logger
	logAllRequests bool
}

func NewMiddleware(pipeline *Pipeline, logger *observability.Logger, logAllRequests bool) *Middleware {
	return &Middleware{
		pipeline:       pipeline,
		logger:         logger,
		logAllRequests: logAllRequests,
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps next with audit recording.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if !m.shouldRecord(r, wrapped.statusCode) {
			return
		}

		status := "success"
		if wrapped.statusCode >= 400 {
			status = "error"
		}
		event := &Event{
			EventType: EventTypeAuditLog,
			IPAddress: httputil.ClientIP(r),
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Details: map[string]interface{}{
				"method":      r.Method,
				"status":      status,
				"status_code": wrapped.statusCode,
			},
		}
		if id, ok := identity.FromContext(r.Context()); ok {
			event.UserID = id.SubjectID
			event.TenantID = id.TenantID
		}

		// The response already went out, so a persistence failure can
		// only be logged here.
		if err := m.pipeline.LogEvent(r.Context(), event); err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("failed to record request audit event")
		}
	})
}

func (m *Middleware) shouldRecord(r *http.Request, statusCode int) bool {
	if m.logAllRequests {
		return true
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
		return true
	}
	return statusCode >= 400
}
