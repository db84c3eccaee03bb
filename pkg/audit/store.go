package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store persists security events. Implementations must treat the log as
// append-only: Create and read, never update.
type Store interface {
	// Create appends one event.
	Create(ctx context.Context, event *Event) error

	// FindRecent returns events matching the query, newest first.
	FindRecent(ctx context.Context, q Query) ([]*Event, error)

	// FindOlderThan returns events with a timestamp before the cutoff,
	// oldest first, used by retention archiving.
	FindOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error)

	// DeleteOlderThan removes events with a timestamp before the cutoff
	// and reports how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteByIDs removes exactly the named events, used by retention
	// archiving to delete only what was archived.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// DBStore is the PostgreSQL-backed Store.
type DBStore struct {
	db *sql.DB
}

// NewDBStore wires the store and makes sure the table exists.
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &DBStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure security_events table: %w", err)
	}
	return s, nil
}

func (s *DBStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS security_events (
		id UUID PRIMARY KEY,
		event_type VARCHAR(50) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		user_id VARCHAR(255),
		tenant_id VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		endpoint TEXT,
		details JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_security_events_timestamp ON security_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_security_events_event_type ON security_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_security_events_tenant_id ON security_events(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_security_events_user_id ON security_events(user_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// Create appends one event.
func (s *DBStore) Create(ctx context.Context, event *Event) error {
	var detailsJSON []byte
	var err error
	if event.Details != nil {
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO security_events (
			id, event_type, severity, timestamp,
			user_id, tenant_id, ip_address, user_agent, endpoint, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.ID, event.EventType, event.Severity, event.Timestamp,
		event.UserID, event.TenantID, event.IPAddress, event.UserAgent,
		event.Endpoint, detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// FindRecent returns events matching the query, newest first.
func (s *DBStore) FindRecent(ctx context.Context, q Query) ([]*Event, error) {
	query := `
		SELECT id, event_type, severity, timestamp,
			user_id, tenant_id, ip_address, user_agent, endpoint, details
		FROM security_events
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if len(q.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		types := make([]string, len(q.EventTypes))
		for i, et := range q.EventTypes {
			types[i] = string(et)
		}
		args = append(args, pq.Array(types))
		argCount++
	}
	if q.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", argCount)
		args = append(args, string(q.Severity))
		argCount++
	}
	if q.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, q.UserID)
		argCount++
	}
	if q.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argCount)
		args = append(args, q.TenantID)
		argCount++
	}
	if q.IPAddress != "" {
		query += fmt.Sprintf(" AND ip_address = $%d", argCount)
		args = append(args, q.IPAddress)
		argCount++
	}
	if q.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *q.Since)
		argCount++
	}
	if q.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *q.Until)
		argCount++
	}

	query += " ORDER BY timestamp DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FindOlderThan returns events older than the cutoff, oldest first.
func (s *DBStore) FindOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error) {
	query := `
		SELECT id, event_type, severity, timestamp,
			user_id, tenant_id, ip_address, user_agent, endpoint, details
		FROM security_events
		WHERE timestamp < $1
		ORDER BY timestamp ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired security events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteOlderThan removes events older than the cutoff.
func (s *DBStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM security_events WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired security events: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByIDs removes exactly the named events.
func (s *DBStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM security_events WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete security events by id: %w", err)
	}
	return result.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}
		var userID, tenantID, ipAddress, userAgent, endpoint sql.NullString
		var detailsJSON []byte

		err := rows.Scan(
			&event.ID, &event.EventType, &event.Severity, &event.Timestamp,
			&userID, &tenantID, &ipAddress, &userAgent, &endpoint, &detailsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}

		event.UserID = userID.String
		event.TenantID = tenantID.String
		event.IPAddress = ipAddress.String
		event.UserAgent = userAgent.String
		event.Endpoint = endpoint.String

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security events: %w", err)
	}
	return events, nil
}
