// Package service holds the administrative operations over the tenant
// registry and the pool cache: listing, invalidation, and pool warm-up.
package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendapro/vendapro-saas/platform/go/tenant"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/poolcache"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/registry"
)

type Service struct {
	registry registry.Registry
	pools    *poolcache.Cache
	logger   *zap.Logger
}

func New(reg registry.Registry, pools *poolcache.Cache, logger *zap.Logger) *Service {
	if reg == nil || pools == nil {
		panic("tenants service: registry and pool cache are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: reg, pools: pools, logger: logger}
}

// Summary is the admin-facing view of a tenant. Connection credentials are
// deliberately absent.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	TaxID       string    `json:"taxId"`
	DisplayName string    `json:"displayName"`
	SchemaName  string    `json:"schemaName"`
	Status      string    `json:"status"`
}

// ListActive collects the registry's active tenants.
func (s *Service) ListActive(ctx context.Context) ([]Summary, error) {
	summaries := []Summary{}
	for rec, err := range s.registry.ListActive(ctx) {
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{
			ID:          rec.ID,
			TaxID:       rec.TaxID,
			DisplayName: rec.DisplayName,
			SchemaName:  rec.SchemaName,
			Status:      string(rec.Status),
		})
	}
	return summaries, nil
}

// Invalidate tears down the tenant's cached pool (credentials rotated,
// tenant moved, schema dropped). Reports whether a pool existed.
func (s *Service) Invalidate(ctx context.Context, tenantID uuid.UUID) bool {
	return s.pools.Invalidate(ctx, tenantID)
}

// WarmResult reports the outcome of a warm-up pass.
type WarmResult struct {
	Warmed int      `json:"warmed"`
	Failed []string `json:"failed,omitempty"`
}

// WarmPools opens (or reuses) a pool for every active tenant. Failures are
// collected per tenant instead of aborting the pass; a tenant whose database
// is down must not block warming the rest.
func (s *Service) WarmPools(ctx context.Context) (WarmResult, error) {
	var result WarmResult
	for rec, err := range s.registry.ListActive(ctx) {
		if err != nil {
			return result, err
		}
		if _, err := s.pools.GetOrCreate(ctx, rec.ID, rec.Signature(), rec.DBPassword); err != nil {
			s.logger.Warn("warm pool",
				zap.String("tax_id", rec.TaxID),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, rec.TaxID)
			continue
		}
		result.Warmed++
	}
	return result, nil
}

// PoolCount reports how many pools are cached right now.
func (s *Service) PoolCount() int { return s.pools.Len() }

// Statuses for reference by admin tooling.
var KnownStatuses = []tenant.Status{tenant.StatusActive, tenant.StatusSuspended, tenant.StatusDisabled}
