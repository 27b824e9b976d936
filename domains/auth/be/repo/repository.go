// Package repo implements the schema-scoped credential and profile lookups
// against a tenant's own users table.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	platformauth "github.com/vendapro/vendapro-saas/platform/go/auth"
	"github.com/vendapro/vendapro-saas/platform/go/persistence"
	"github.com/vendapro/vendapro-saas/platform/go/tenant"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/poolcache"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/resolver"
)

const userColumns = "id, username, name, password, is_admin, is_manager"

// UserAuthenticator resolves credentials inside the tenant schema. It is the
// resolver's AUTHENTICATE step: an unknown username and a wrong password are
// deliberately indistinguishable in its result.
type UserAuthenticator struct{}

func NewUserAuthenticator() *UserAuthenticator { return &UserAuthenticator{} }

func (a *UserAuthenticator) Authenticate(ctx context.Context, handle *poolcache.Handle, schema, username, password string) (tenant.User, error) {
	db, err := persistence.NewScopedDB(handle, schema)
	if err != nil {
		return tenant.User{}, err
	}

	rs, err := db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users WHERE lower(username) = lower($1) LIMIT 1`, userColumns),
		username)
	if err != nil {
		return tenant.User{}, err
	}
	if rs.Len() == 0 {
		return tenant.User{}, resolver.ErrInvalidCredentials
	}

	row := rs.Rows[0]
	stored, _ := row[3].(string)
	if err := platformauth.VerifyPassword(stored, password); err != nil {
		return tenant.User{}, resolver.ErrInvalidCredentials
	}

	id, err := toUUID(row[0])
	if err != nil {
		return tenant.User{}, fmt.Errorf("user id: %w", err)
	}
	name, _ := row[2].(string)
	isAdmin, _ := row[4].(bool)
	isManager, _ := row[5].(bool)

	return tenant.User{ID: id, Name: name, IsAdmin: isAdmin, IsManager: isManager}, nil
}

// Profile is the session user's row as shown by GET /v1/auth/me.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"isAdmin"`
	IsManager bool      `json:"isManager"`
}

// ErrProfileNotFound indicates the session user no longer exists in the tenant schema.
var ErrProfileNotFound = errors.New("repo: profile not found")

// FindProfile loads the resolved user's profile through the session's
// schema-scoped executor.
func FindProfile(ctx context.Context, session *resolver.Session) (Profile, error) {
	db, err := persistence.NewScopedDB(session.Handle, session.Schema)
	if err != nil {
		return Profile{}, err
	}

	rs, err := db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns),
		session.User.ID)
	if err != nil {
		return Profile{}, err
	}
	if rs.Len() == 0 {
		return Profile{}, ErrProfileNotFound
	}

	row := rs.Rows[0]
	id, err := toUUID(row[0])
	if err != nil {
		return Profile{}, fmt.Errorf("user id: %w", err)
	}
	p := Profile{ID: id}
	p.Username, _ = row[1].(string)
	p.Name, _ = row[2].(string)
	p.IsAdmin, _ = row[4].(bool)
	p.IsManager, _ = row[5].(bool)
	return p, nil
}

// toUUID accepts the representations pgx produces for uuid columns depending
// on type registration.
func toUUID(v any) (uuid.UUID, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val, nil
	case [16]byte:
		return uuid.UUID(val), nil
	case string:
		return uuid.Parse(val)
	default:
		return uuid.Nil, fmt.Errorf("unsupported uuid representation %T", v)
	}
}
