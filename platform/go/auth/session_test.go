package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vendapro/vendapro-saas/platform/go/tenant"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/resolver"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testSession() *resolver.Session {
	return &resolver.Session{
		TenantID: uuid.New(),
		TaxID:    "05122231000191",
		Schema:   "rimef",
		User:     tenant.User{ID: uuid.New(), Name: "joao"},
	}
}

func TestCreateAndResolveSession(t *testing.T) {
	m, err := NewManager(testSecret, "vendapro", time.Hour)
	require.NoError(t, err)

	s := testSession()
	token, expiresAt, err := m.Create(s)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	got, err := m.Resolve(token)
	require.NoError(t, err)
	require.Same(t, s, got, "the token must map back to the same live session")
}

func TestResolveRejectsGarbageToken(t *testing.T) {
	m, err := NewManager(testSecret, "vendapro", time.Hour)
	require.NoError(t, err)

	_, err = m.Resolve("not-a-token")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestResolveRejectsForeignSignature(t *testing.T) {
	m1, err := NewManager(testSecret, "vendapro", time.Hour)
	require.NoError(t, err)
	m2, err := NewManager("ffffffffffffffffffffffffffffffff", "vendapro", time.Hour)
	require.NoError(t, err)

	token, _, err := m1.Create(testSession())
	require.NoError(t, err)

	_, err = m2.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestRevokeEndsSession(t *testing.T) {
	m, err := NewManager(testSecret, "vendapro", time.Hour)
	require.NoError(t, err)

	token, _, err := m.Create(testSession())
	require.NoError(t, err)

	m.Revoke(token)

	_, err = m.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidSession, "a valid signature must not outlive revocation")
}

func TestPurgeExpired(t *testing.T) {
	m, err := NewManager(testSecret, "vendapro", time.Minute)
	require.NoError(t, err)

	_, _, err = m.Create(testSession())
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	require.Equal(t, 0, m.PurgeExpired(time.Now()))
	require.Equal(t, 1, m.PurgeExpired(time.Now().Add(2*time.Minute)))
	require.Equal(t, 0, m.Len())
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager("short", "vendapro", time.Hour)
	require.Error(t, err)

	_, err = NewManager(testSecret, " ", time.Hour)
	require.Error(t, err)

	_, err = NewManager(testSecret, "vendapro", 0)
	require.Error(t, err)
}
