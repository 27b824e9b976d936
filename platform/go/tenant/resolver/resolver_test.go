package resolver

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

// okPool is the minimal healthy pool for resolver tests.
type okPool struct{}

func (okPool) Acquire(ctx context.Context) (poolcache.Conn, error) {
	return nil, errors.New("not implemented")
}
func (okPool) Ping(ctx context.Context) error { return nil }
func (okPool) AcquiredConns() int32           { return 0 }
func (okPool) Close()                         {}

// staticAuth accepts exactly one username/password pair.
type staticAuth struct {
	username string
	password string
	user     tenant.User
	err      error
	calls    int
}

func (a *staticAuth) Authenticate(ctx context.Context, _ *poolcache.Handle, schema, username, password string) (tenant.User, error) {
	a.calls++
	if a.err != nil {
		return tenant.User{}, a.err
	}
	if username != a.username || password != a.password {
		return tenant.User{}, ErrInvalidCredentials
	}
	return a.user, nil
}

func activeRecord() tenant.Record {
	return tenant.Record{
		ID:          uuid.New(),
		TaxID:       "05122231000191",
		DisplayName: "Rimef Distribuidora",
		DBHost:      "db1.internal",
		DBPort:      5432,
		DBName:      "vendas",
		DBUser:      "app",
		DBPassword:  tenant.Secret("pw"),
		SchemaName:  "rimef",
		Status:      tenant.StatusActive,
	}
}

func newTestResolver(t *testing.T, reg registry.Registry, auth Authenticator, opener poolcache.Opener) (*Resolver, *poolcache.Cache) {
	t.Helper()
	if opener == nil {
		opener = func(ctx context.Context, sig tenant.Signature, _ tenant.Secret) (poolcache.Pool, error) {
			return okPool{}, nil
		}
	}
	cache := poolcache.New(opener, poolcache.Config{}, nil)
	t.Cleanup(func() { cache.Close(context.Background()) })
	return New(reg, cache, auth, nil), cache
}

func TestResolveHappyPath(t *testing.T) {
	rec := activeRecord()
	reg := registry.NewMemory(rec)
	auth := &staticAuth{username: "joao", password: "123", user: tenant.User{ID: uuid.New(), Name: "joao", IsAdmin: true}}
	r, _ := newTestResolver(t, reg, auth, nil)

	s, err := r.Resolve(context.Background(), "05.122.231/0001-91", "joao", "123")
	require.NoError(t, err)
	require.Equal(t, rec.ID, s.TenantID)
	require.Equal(t, "rimef", s.Schema)
	require.Equal(t, "05122231000191", s.TaxID)
	require.NotNil(t, s.Handle)
	require.Equal(t, "joao", s.User.Name)
	require.True(t, s.User.IsAdmin)
}

func TestResolveIsIdempotent(t *testing.T) {
	rec := activeRecord()
	reg := registry.NewMemory(rec)
	auth := &staticAuth{username: "ricardo", password: "123", user: tenant.User{Name: "ricardo"}}
	r, cache := newTestResolver(t, reg, auth, nil)

	first, err := r.Resolve(context.Background(), "05122231000191", "ricardo", "123")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "05122231000191", "ricardo", "123")
	require.NoError(t, err)

	require.Same(t, first.Handle, second.Handle, "re-resolution must not create a second pool")
	require.Equal(t, first.TenantID, second.TenantID)
	require.Equal(t, first.Schema, second.Schema)
	require.Equal(t, 1, cache.Len())
}

func TestResolveUnknownTenant(t *testing.T) {
	reg := registry.NewMemory()
	auth := &staticAuth{}
	r, _ := newTestResolver(t, reg, auth, nil)

	_, err := r.Resolve(context.Background(), "99999999999999", "joao", "123")

	var f *Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, ReasonUnknownTenant, f.Reason)
	require.False(t, f.Retryable())
	require.Zero(t, auth.calls, "no credential check may run for an unknown tenant")
}

func TestResolveSuspendedTenant(t *testing.T) {
	rec := activeRecord()
	rec.Status = tenant.StatusSuspended
	reg := registry.NewMemory(rec)
	auth := &staticAuth{}
	r, cache := newTestResolver(t, reg, auth, nil)

	_, err := r.Resolve(context.Background(), rec.TaxID, "joao", "123")

	var f *Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, ReasonTenantSuspended, f.Reason)
	require.NotEqual(t, ReasonUnknownTenant, f.Reason, "suspension must stay distinguishable internally")
	require.Equal(t, 0, cache.Len(), "no pool may be opened for a suspended tenant")
}

func TestResolveRegistryUnavailableIsRetryable(t *testing.T) {
	reg := registry.NewMemory(activeRecord())
	reg.Unavailable = true
	r, _ := newTestResolver(t, reg, &staticAuth{}, nil)

	_, err := r.Resolve(context.Background(), "05122231000191", "joao", "123")

	var f *Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, ReasonRegistryUnavailable, f.Reason)
	require.True(t, f.Retryable())
}

func TestResolveConnectionError(t *testing.T) {
	reg := registry.NewMemory(activeRecord())
	opener := func(ctx context.Context, sig tenant.Signature, _ tenant.Secret) (poolcache.Pool, error) {
		return nil, errors.New("connection refused")
	}
	r, cache := newTestResolver(t, reg, &staticAuth{}, opener)

	_, err := r.Resolve(context.Background(), "05122231000191", "joao", "123")

	var f *Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, ReasonConnectionError, f.Reason)
	require.True(t, f.Retryable())
	require.Equal(t, 0, cache.Len())
}

func TestResolveInvalidCredentials(t *testing.T) {
	reg := registry.NewMemory(activeRecord())
	auth := &staticAuth{username: "joao", password: "123"}
	r, cache := newTestResolver(t, reg, auth, nil)

	_, err := r.Resolve(context.Background(), "05122231000191", "joao", "wrong")

	var f *Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, ReasonInvalidCredentials, f.Reason)
	require.False(t, f.Retryable())
	require.Equal(t, 1, cache.Len(), "the pool stays cached; only the login failed")
}

func TestResolveBadTaxIDFailsBeforeLookup(t *testing.T) {
	reg := registry.NewMemory(activeRecord())
	reg.Unavailable = true // must not matter; lookup is never reached
	r, _ := newTestResolver(t, reg, &staticAuth{}, nil)

	_, err := r.Resolve(context.Background(), "not-a-cnpj", "joao", "123")

	var f *Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, ReasonBadTaxID, f.Reason)
}
