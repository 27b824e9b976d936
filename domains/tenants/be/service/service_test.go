package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

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

func newTestService(t *testing.T, reg registry.Registry, opener poolcache.Opener) (*Service, *poolcache.Cache) {
	t.Helper()
	if opener == nil {
		opener = func(ctx context.Context, sig tenant.Signature, _ tenant.Secret) (poolcache.Pool, error) {
			return okPool{}, nil
		}
	}
	cache := poolcache.New(opener, poolcache.Config{}, nil)
	t.Cleanup(func() { cache.Close(context.Background()) })
	return New(reg, cache, nil), cache
}

func TestListActiveSummaries(t *testing.T) {
	reg := registry.NewMemory(
		record("05122231000191", "rimef"),
		record("33000167000101", "acme"),
	)
	svc, _ := newTestService(t, reg, nil)

	summaries, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		require.Equal(t, "ACTIVE", s.Status)
		require.NotEmpty(t, s.SchemaName)
	}
}

func TestListActiveRegistryDown(t *testing.T) {
	reg := registry.NewMemory(record("05122231000191", "rimef"))
	reg.Unavailable = true
	svc, _ := newTestService(t, reg, nil)

	_, err := svc.ListActive(context.Background())
	require.ErrorIs(t, err, tenant.ErrRegistryUnavailable)
}

func TestWarmPoolsOpensEveryActiveTenant(t *testing.T) {
	reg := registry.NewMemory(
		record("05122231000191", "rimef"),
		record("33000167000101", "acme"),
	)
	svc, cache := newTestService(t, reg, nil)

	result, err := svc.WarmPools(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Warmed)
	require.Empty(t, result.Failed)
	require.Equal(t, 2, cache.Len())
	require.Equal(t, 2, svc.PoolCount())
}

func TestWarmPoolsCollectsFailures(t *testing.T) {
	down := record("33000167000101", "acme")
	reg := registry.NewMemory(record("05122231000191", "rimef"), down)

	opener := func(ctx context.Context, sig tenant.Signature, _ tenant.Secret) (poolcache.Pool, error) {
		if sig.Schema == "acme" {
			return nil, poolcache.ErrConnection
		}
		return okPool{}, nil
	}
	svc, cache := newTestService(t, reg, opener)

	result, err := svc.WarmPools(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Warmed)
	require.Equal(t, []string{"33000167000101"}, result.Failed)
	require.Equal(t, 1, cache.Len())
}

func TestInvalidateReportsPresence(t *testing.T) {
	rec := record("05122231000191", "rimef")
	reg := registry.NewMemory(rec)
	svc, cache := newTestService(t, reg, nil)

	require.False(t, svc.Invalidate(context.Background(), rec.ID))

	_, err := cache.GetOrCreate(context.Background(), rec.ID, rec.Signature(), rec.DBPassword)
	require.NoError(t, err)

	require.True(t, svc.Invalidate(context.Background(), rec.ID))
	require.Equal(t, 0, cache.Len())
}
