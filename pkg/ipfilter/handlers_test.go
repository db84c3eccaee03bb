package ipfilter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlersFixture(t *testing.T) (http.Handler, *Engine) {
	t.Helper()
	engine := newTestEngine(t, newFakeEntryStore(), &memoryEventStore{})
	h := NewHandlers(engine, engineLogger())

	router := mux.NewRouter().PathPrefix("/api/v1/security").Subrouter()
	h.RegisterRoutes(router)
	return router, engine
}

func TestAddEntryEndpoint(t *testing.T) {
	router, _ := handlersFixture(t)

	body := `{"tenant_id":"tenant-1","cidr":"10.0.0.0/24","description":"office"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/security/whitelist", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var entry Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "tenant-1", entry.TenantID)
	assert.Equal(t, "10.0.0.0/24", entry.CIDR)
	assert.True(t, entry.Active)
}

func TestAddEntryValidation(t *testing.T) {
	router, _ := handlersFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "bad cidr", body: `{"tenant_id":"tenant-1","cidr":"10.0.0.0/33"}`},
		{name: "missing tenant", body: `{"cidr":"10.0.0.0/24"}`},
		{name: "missing cidr", body: `{"tenant_id":"tenant-1"}`},
		{name: "invalid json", body: `{nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/security/whitelist", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListEntriesEndpoint(t *testing.T) {
	router, engine := handlersFixture(t)
	addEntry(t, engine, "tenant-1", "10.0.0.0/24")
	addEntry(t, engine, "tenant-2", "192.168.0.0/16")

	t.Run("all entries", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/security/whitelist", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Count)
	})

	t.Run("scoped to tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/security/whitelist?tenant_id=tenant-1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Entries []*Entry `json:"entries"`
			Count   int      `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, "tenant-1", body.Entries[0].TenantID)
	})
}

func TestRemoveEntryEndpoint(t *testing.T) {
	router, engine := handlersFixture(t)
	entry := addEntry(t, engine, "tenant-1", "10.0.0.0/24")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/security/whitelist/"+entry.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/security/whitelist/"+entry.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
