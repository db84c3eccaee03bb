package ipfilter

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one allowlist row. An entry scopes a CIDR range to a tenant.
// Only active entries participate in admission checks; inactive rows are
// kept for the admin surface and for history.
type Entry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	CIDR        string    `json:"cidr"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrEntryNotFound is returned when a delete or lookup misses.
var ErrEntryNotFound = fmt.Errorf("allowlist entry not found")

// Store persists allowlist entries.
type Store interface {
	Create(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, id string) (*Entry, error)

	// FindActive returns only a tenant's active entries. This is the
	// admission-path query; ListByTenant and List serve the admin surface
	// and return inactive rows too.
	FindActive(ctx context.Context, tenantID string) ([]*Entry, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Entry, error)
	List(ctx context.Context) ([]*Entry, error)
}

// DBStore is the PostgreSQL-backed Store.
type DBStore struct {
	db *sql.DB
}

func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &DBStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure ip_allowlist table: %w", err)
	}
	return s, nil
}

func (s *DBStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS ip_allowlist (
		id UUID PRIMARY KEY,
		tenant_id VARCHAR(255) NOT NULL,
		cidr VARCHAR(50) NOT NULL,
		description TEXT,
		created_by VARCHAR(255),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_ip_allowlist_tenant_id ON ip_allowlist(tenant_id);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *DBStore) Create(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO ip_allowlist (id, tenant_id, cidr, description, created_by, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.CIDR, entry.Description, entry.CreatedBy, entry.Active, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert allowlist entry: %w", err)
	}
	return nil
}

func (s *DBStore) Delete(ctx context.Context, id string) (*Entry, error) {
	query := `
		DELETE FROM ip_allowlist WHERE id = $1
		RETURNING id, tenant_id, cidr, description, created_by, is_active, created_at
	`

	entry := &Entry{}
	var description, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID, &entry.TenantID, &entry.CIDR, &description, &createdBy, &entry.Active, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete allowlist entry: %w", err)
	}

	entry.Description = description.String
	entry.CreatedBy = createdBy.String
	return entry, nil
}

func (s *DBStore) FindActive(ctx context.Context, tenantID string) ([]*Entry, error) {
	query := `
		SELECT id, tenant_id, cidr, description, created_by, is_active, created_at
		FROM ip_allowlist
		WHERE tenant_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active allowlist entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *DBStore) ListByTenant(ctx context.Context, tenantID string) ([]*Entry, error) {
	query := `
		SELECT id, tenant_id, cidr, description, created_by, is_active, created_at
		FROM ip_allowlist
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *DBStore) List(ctx context.Context) ([]*Entry, error) {
	query := `
		SELECT id, tenant_id, cidr, description, created_by, is_active, created_at
		FROM ip_allowlist
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var description, createdBy sql.NullString
		err := rows.Scan(&entry.ID, &entry.TenantID, &entry.CIDR, &description, &createdBy, &entry.Active, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allowlist entry: %w", err)
		}
		entry.Description = description.String
		entry.CreatedBy = createdBy.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allowlist entries: %w", err)
	}
	return entries, nil
}
