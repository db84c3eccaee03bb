package audit

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of security event.
type EventType string

const (
	// EventTypeAuditLog records a completed mutating API request.
	EventTypeAuditLog EventType = "audit-log"
	// EventTypeIPBlocked records a request rejected or an allowlist
	// change made by the IP filter.
	EventTypeIPBlocked EventType = "ip-blocked"
	// EventTypeAuthLoginFailed records a failed login attempt.
	EventTypeAuthLoginFailed EventType = "auth-login-failed"
)

// Severity classifies how urgent an event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity returns the severity assigned when an event carries
// none. Routine request audits are informational; blocked IPs and failed
// logins warrant attention.
func DefaultSeverity(eventType EventType) Severity {
	switch eventType {
	case EventTypeIPBlocked, EventTypeAuthLoginFailed:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// Event is a single security event. Events are append-only: once
// persisted they are never updated, only eventually swept by retention.
type Event struct {
	ID        string                 `json:"id"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id,omitempty"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToJSON serializes the event.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Query filters event reads. Results are always newest first.
type Query struct {
	EventTypes []EventType
	Severity   Severity
	UserID     string
	TenantID   string
	IPAddress  string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// DefaultQueryLimit caps result sets when the caller does not say.
const DefaultQueryLimit = 100

// ExportFormat selects the serialization used by Export.
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// RetentionPolicy controls how long events are kept and whether they
// are archived before deletion.
type RetentionPolicy struct {
	RetentionDays  int
	ArchiveEnabled bool
}

// DefaultRetentionPolicy keeps events for 90 days without archiving.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 90,
	}
}
