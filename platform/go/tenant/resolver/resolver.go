// Package resolver turns login credentials into a ready-to-use, schema-scoped
// tenant session, or a precise failure.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendapro/vendapro-saas/platform/go/obs"
	"github.com/vendapro/vendapro-saas/platform/go/tenant"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/poolcache"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/registry"
)

// Reason is the terminal failure cause of one resolution attempt. The
// resolver always knows exactly which check failed; what the end user gets
// to see is the HTTP layer's decision.
type Reason string

const (
	ReasonUnknownTenant       Reason = "unknown_tenant"
	ReasonTenantSuspended     Reason = "tenant_suspended"
	ReasonInvalidCredentials  Reason = "invalid_credentials"
	ReasonRegistryUnavailable Reason = "registry_unavailable"
	ReasonConnectionError     Reason = "connection_error"
	ReasonBadTaxID            Reason = "bad_tax_id"
)

// Failure is a terminal resolution failure carrying its single precise reason.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("resolution failed (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("resolution failed (%s)", f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure is an infrastructure condition the
// client may retry with backoff, as opposed to a credential problem.
func (f *Failure) Retryable() bool {
	return f.Reason == ReasonRegistryUnavailable || f.Reason == ReasonConnectionError
}

// ErrInvalidCredentials is returned by an Authenticator when no user in the
// tenant's schema matches the supplied username and password.
var ErrInvalidCredentials = errors.New("resolver: invalid credentials")

// Authenticator checks credentials against the tenant's own user table,
// scoped to the tenant's schema. Case and format rules live behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, handle *poolcache.Handle, schema, username, password string) (tenant.User, error)
}

// Session is the result handed to request handlers. It references the
// cache-owned pool handle; it never owns it.
type Session struct {
	TenantID    uuid.UUID
	TaxID       string
	DisplayName string
	Schema      string
	Handle      *poolcache.Handle
	User        tenant.User
}

// Resolver wires the registry, the pool cache, and the per-tenant
// authenticator into the resolution state machine:
//
//	START -> LOOKUP -> POOL_READY -> AUTHENTICATE -> RESOLVED | FAILED(reason)
type Resolver struct {
	registry registry.Registry
	pools    *poolcache.Cache
	auth     Authenticator
	logger   *zap.Logger
}

func New(reg registry.Registry, pools *poolcache.Cache, auth Authenticator, logger *zap.Logger) *Resolver {
	if reg == nil || pools == nil || auth == nil {
		panic("resolver: registry, pool cache and authenticator are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{registry: reg, pools: pools, auth: auth, logger: logger}
}

// Resolve runs one resolution attempt. Resolving the same inputs twice yields
// equivalent sessions sharing one pool handle; no duplicate pools are created.
func (r *Resolver) Resolve(ctx context.Context, taxID, username, password string) (*Session, error) {
	// START: normalize and validate the organization identifier.
	normalized, err := tenant.NormalizeTaxID(taxID)
	if err != nil {
		return nil, r.fail(ReasonBadTaxID, err, taxID, username)
	}

	// LOOKUP: the registry is the single source of connection parameters.
	rec, err := r.registry.FindByTaxID(ctx, normalized)
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		return nil, r.fail(ReasonUnknownTenant, err, normalized, username)
	case errors.Is(err, tenant.ErrRegistryUnavailable):
		return nil, r.fail(ReasonRegistryUnavailable, err, normalized, username)
	case err != nil:
		return nil, r.fail(ReasonRegistryUnavailable, err, normalized, username)
	}
	if rec.Status != tenant.StatusActive {
		return nil, r.fail(ReasonTenantSuspended,
			fmt.Errorf("tenant status %s", rec.Status), normalized, username)
	}

	// POOL_READY: reuse or create the pool for the tenant's signature.
	handle, err := r.pools.GetOrCreate(ctx, rec.ID, rec.Signature(), rec.DBPassword)
	if err != nil {
		return nil, r.fail(ReasonConnectionError, err, normalized, username)
	}

	// AUTHENTICATE: schema-scoped credential check in the tenant's user table.
	user, err := r.auth.Authenticate(ctx, handle, rec.SchemaName, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, r.fail(ReasonInvalidCredentials, err, normalized, username)
		}
		return nil, r.fail(ReasonConnectionError, err, normalized, username)
	}

	// RESOLVED.
	obs.ObserveResolution("resolved")
	r.logger.Info("tenant resolved",
		zap.String("tax_id", normalized),
		zap.String("tenant_id", rec.ID.String()),
		zap.String("schema", rec.SchemaName),
		zap.String("user", user.Name),
	)

	return &Session{
		TenantID:    rec.ID,
		TaxID:       rec.TaxID,
		DisplayName: rec.DisplayName,
		Schema:      rec.SchemaName,
		Handle:      handle,
		User:        user,
	}, nil
}

// fail logs the precise reason internally and returns the typed failure.
// Nothing here decides what the end user sees.
func (r *Resolver) fail(reason Reason, err error, taxID, username string) *Failure {
	obs.ObserveResolution(string(reason))
	r.logger.Warn("tenant resolution failed",
		zap.String("reason", string(reason)),
		zap.String("tax_id", taxID),
		zap.String("username", username),
		zap.Error(err),
	)
	return &Failure{Reason: reason, Err: err}
}
