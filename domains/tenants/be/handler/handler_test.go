package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vendapro/vendapro-saas/domains/tenants/be/service"
	"github.com/vendapro/vendapro-saas/platform/go/tenant"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/poolcache"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/registry"
)

type okPool struct{}

func (okPool) Acquire(ctx context.Context) (poolcache.Conn, error) {
	return nil, errors.New("not implemented")
}
func (okPool) Ping(ctx context.Context) error { return nil }
func (okPool) AcquiredConns() int32           { return 0 }
func (okPool) Close()                         {}

func record(taxID, schema string) tenant.Record {
	return tenant.Record{
		ID:          uuid.New(),
		TaxID:       taxID,
		DisplayName: "Tenant " + schema,
		DBHost:      "db1.internal",
		DBPort:      5432,
		DBName:      "vendas",
		DBUser:      "app",
		DBPassword:  tenant.Secret("pw"),
		SchemaName:  schema,
		Status:      tenant.StatusActive,
	}
}

// newTestRouter mounts the handler under the same routes main wires it to.
func newTestRouter(t *testing.T, reg registry.Registry) (chi.Router, *poolcache.Cache) {
	t.Helper()

	opener := func(ctx context.Context, sig tenant.Signature, _ tenant.Secret) (poolcache.Pool, error) {
		return okPool{}, nil
	}
	cache := poolcache.New(opener, poolcache.Config{}, nil)
	t.Cleanup(func() { cache.Close(context.Background()) })

	h := New(service.New(reg, cache, nil), zaptest.NewLogger(t))

	r := chi.NewRouter()
	r.Get("/v1/admin/tenants", h.List)
	r.Post("/v1/admin/tenants/{tenantID}/invalidate", h.Invalidate)
	r.Post("/v1/admin/pools/warm", h.WarmPools)
	return r, cache
}

func TestListTenants(t *testing.T) {
	t.Parallel()

	reg := registry.NewMemory(record("05122231000191", "rimef"))
	router, _ := newTestRouter(t, reg)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Items []service.Summary `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Items, 1)
	require.Equal(t, "rimef", payload.Items[0].SchemaName)
}

func TestListTenantsRegistryDown(t *testing.T) {
	t.Parallel()

	reg := registry.NewMemory(record("05122231000191", "rimef"))
	reg.Unavailable = true
	router, _ := newTestRouter(t, reg)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInvalidateBadID(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, registry.NewMemory())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants/not-a-uuid/invalidate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidateUnknownTenant(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, registry.NewMemory())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants/"+uuid.NewString()+"/invalidate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidateCachedPool(t *testing.T) {
	t.Parallel()

	rec := record("05122231000191", "rimef")
	router, cache := newTestRouter(t, registry.NewMemory(rec))

	_, err := cache.GetOrCreate(context.Background(), rec.ID, rec.Signature(), rec.DBPassword)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants/"+rec.ID.String()+"/invalidate", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, 0, cache.Len())
}

func TestWarmPoolsEndpoint(t *testing.T) {
	t.Parallel()

	reg := registry.NewMemory(
		record("05122231000191", "rimef"),
		record("33000167000101", "acme"),
	)
	router, cache := newTestRouter(t, reg)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/pools/warm", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result service.WarmResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 2, result.Warmed)
	require.Equal(t, 2, cache.Len())
}
