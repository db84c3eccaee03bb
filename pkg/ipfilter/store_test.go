package ipfilter

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDBStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ip_allowlist").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewDBStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestDBStoreCreate(t *testing.T) {
	store, mock := newTestDBStore(t)

	entry := &Entry{
		ID:        "11111111-2222-3333-4444-555555555555",
		TenantID:  "tenant-1",
		CIDR:      "10.0.0.0/24",
		CreatedBy: "admin-1",
		Active:    true,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO ip_allowlist").
		WithArgs(entry.ID, entry.TenantID, entry.CIDR, entry.Description, entry.CreatedBy, entry.Active, entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreDelete(t *testing.T) {
	store, mock := newTestDBStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("DELETE FROM ip_allowlist WHERE id = (.+) RETURNING").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "cidr", "description", "created_by", "is_active", "created_at",
		}).AddRow("id-1", "tenant-1", "10.0.0.0/24", "office", "admin-1", true, now))

	entry, err := store.Delete(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", entry.TenantID)
	assert.Equal(t, "10.0.0.0/24", entry.CIDR)
	assert.Equal(t, "office", entry.Description)
	assert.True(t, entry.Active)
}

func TestDBStoreDeleteNotFound(t *testing.T) {
	store, mock := newTestDBStore(t)

	mock.ExpectQuery("DELETE FROM ip_allowlist WHERE id = (.+) RETURNING").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "cidr", "description", "created_by", "is_active", "created_at",
		}))

	_, err := store.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDBStoreListByTenant(t *testing.T) {
	store, mock := newTestDBStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM ip_allowlist WHERE tenant_id = (.+) ORDER BY created_at DESC").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "cidr", "description", "created_by", "is_active", "created_at",
		}).
			AddRow("id-2", "tenant-1", "192.168.0.0/16", nil, nil, false, now).
			AddRow("id-1", "tenant-1", "10.0.0.0/24", "office", "admin-1", true, now.Add(-time.Hour)))

	entries, err := store.ListByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-2", entries[0].ID)
	assert.False(t, entries[0].Active)
	assert.Empty(t, entries[0].Description)
	assert.Equal(t, "office", entries[1].Description)
}

func TestDBStoreFindActive(t *testing.T) {
	store, mock := newTestDBStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM ip_allowlist WHERE tenant_id = (.+) AND is_active = TRUE").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "cidr", "description", "created_by", "is_active", "created_at",
		}).AddRow("id-1", "tenant-1", "10.0.0.0/24", "office", "admin-1", true, now))

	entries, err := store.FindActive(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Active)
}
