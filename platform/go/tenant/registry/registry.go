// Package registry provides the authoritative lookup of tenant connection
// parameters. It is the single source of truth for host/port/schema routing;
// nothing else in the codebase may hold literal tenant connection settings.
package registry

import (
	"context"
	"iter"

	"github.com/vendapro/vendapro-saas/platform/go/tenant"
)

// Registry looks up tenant records in the master store.
//
// FindByTaxID expects a free-form tax id and normalizes it before comparison.
// It returns tenant.ErrNotFound when no record matches or the record is
// DISABLED, and tenant.ErrRegistryUnavailable when the master store cannot be
// reached; callers must treat only the latter as retryable.
//
// ListActive yields ACTIVE records lazily; each range over the returned
// sequence issues a fresh query, so the sequence is restartable. It serves
// background maintenance (pool warm-up), never the login path.
type Registry interface {
	FindByTaxID(ctx context.Context, taxID string) (tenant.Record, error)
	ListActive(ctx context.Context) iter.Seq2[tenant.Record, error]
}
