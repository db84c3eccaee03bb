package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAttachesIdentity(t *testing.T) {
	var got Identity
	var ok bool
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderSubjectID, "user-1")
	req.Header.Set(HeaderRole, "admin")
	req.Header.Set(HeaderTenantID, "tenant-1")
	req.Header.Set(HeaderSessionID, "sess-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ok)
	assert.Equal(t, Identity{
		SubjectID: "user-1",
		Role:      "admin",
		TenantID:  "tenant-1",
		SessionID: "sess-1",
	}, got)
}

func TestMiddlewareAnonymousPassThrough(t *testing.T) {
	var ok bool
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = FromRequest(r)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestMiddlewareTrimsHeaderValues(t *testing.T) {
	var got Identity
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderSubjectID, "  user-1  ")
	req.Header.Set(HeaderRole, " viewer ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-1", got.SubjectID)
	assert.Equal(t, "viewer", got.Role)
}
