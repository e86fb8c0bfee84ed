package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/repository"
	"github.com/voyasim/backend/pkg/esimaccess"
)

// PlanStore is the full plan persistence surface used by the catalog.
type PlanStore interface {
	PlanCatalog
	ListAll(ctx context.Context) ([]*domain.Plan, error)
	Create(ctx context.Context, p *domain.Plan) error
	UpdateCatalogFields(ctx context.Context, p *domain.Plan) error
	UpdatePricing(ctx context.Context, id string, priceCents *int64, currency, name *string) error
}

// PackageLister fetches the provider's purchasable catalog.
type PackageLister interface {
	ListPackages(ctx context.Context) ([]esimaccess.Package, error)
}

// SyncBookkeeper records the last sync outcome (system_cache).
type SyncBookkeeper interface {
	Get(ctx context.Context, key string) (*repository.CacheEntry, error)
	Set(ctx context.Context, key string, data interface{}) error
}

const syncCacheKey = "esim_catalog_sync"

// CatalogService serves the public plan list and mirrors the provider
// catalog into local plans. Sync never overwrites price, currency or a
// manually edited name; those are set by an admin after the plan appears.
type CatalogService struct {
	plans    PlanStore
	provider PackageLister
	cache    SyncBookkeeper
	validate *validator.Validate
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(plans PlanStore, provider PackageLister, cache SyncBookkeeper) *CatalogService {
	return &CatalogService{plans: plans, provider: provider, cache: cache, validate: validator.New()}
}

// ListPlans returns all local plans.
func (s *CatalogService) ListPlans(ctx context.Context) ([]*domain.Plan, error) {
	plans, err := s.plans.ListAll(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list plans", err)
	}
	return plans, nil
}

// GetPlan returns one plan or a 404 error.
func (s *CatalogService) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to load plan", err)
	}
	if plan == nil {
		return nil, domain.ErrNotFound("plan not found")
	}
	return plan, nil
}

// Sync pulls the provider catalog and upserts local plans: new packages are
// created unpriced, existing ones get their provider-derived fields refreshed.
func (s *CatalogService) Sync(ctx context.Context) (*domain.SyncResult, error) {
	packages, err := s.provider.ListPackages(ctx)
	if err != nil {
		return nil, domain.ErrInternal("provider catalog fetch failed", err)
	}

	result := &domain.SyncResult{Total: len(packages), SyncedAt: time.Now()}
	for i := range packages {
		pkg := &packages[i]
		plan := planFromPackage(pkg)

		existing, err := s.plans.FindByPackageCode(ctx, pkg.PackageCode)
		if err != nil {
			return nil, domain.ErrInternal("failed to look up plan for "+pkg.PackageCode, err)
		}
		if existing != nil {
			if err := s.plans.UpdateCatalogFields(ctx, plan); err != nil {
				return nil, domain.ErrInternal("failed to refresh plan "+existing.ID, err)
			}
			result.Updated++
			continue
		}

		now := time.Now()
		plan.ID = domain.NewID()
		plan.CreatedAt = now
		plan.UpdatedAt = now
		if err := s.plans.Create(ctx, plan); err != nil {
			return nil, domain.ErrInternal("failed to create plan for "+pkg.PackageCode, err)
		}
		result.Created++
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, syncCacheKey, result); err != nil {
			log.Printf("[Catalog] failed to record sync result: %v", err)
		}
	}

	log.Printf("[Catalog] sync complete: %d created, %d updated of %d packages", result.Created, result.Updated, result.Total)
	return result, nil
}

// LastSync returns the most recent recorded sync outcome, or nil when no
// sync has run yet.
func (s *CatalogService) LastSync(ctx context.Context) (*domain.SyncResult, error) {
	if s.cache == nil {
		return nil, nil
	}
	entry, err := s.cache.Get(ctx, syncCacheKey)
	if err != nil {
		return nil, domain.ErrInternal("failed to load sync record", err)
	}
	if entry == nil {
		return nil, nil
	}

	var result domain.SyncResult
	if err := json.Unmarshal(entry.Data, &result); err != nil {
		return nil, domain.ErrInternal("corrupt sync record", err)
	}
	return &result, nil
}

// UpdatePlan applies an admin pricing/naming change to a synced plan.
func (s *CatalogService) UpdatePlan(ctx context.Context, id string, req *domain.UpdatePlanRequest) (*domain.Plan, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to load plan", err)
	}
	if plan == nil {
		return nil, domain.ErrNotFound("plan not found")
	}

	if err := s.plans.UpdatePricing(ctx, id, req.PriceCents, req.Currency, req.Name); err != nil {
		return nil, domain.ErrInternal("failed to update plan", err)
	}
	return s.plans.FindByID(ctx, id)
}

// planFromPackage maps one provider package onto the local plan shape,
// leaving pricing fields at their defaults.
func planFromPackage(pkg *esimaccess.Package) *domain.Plan {
	planType := domain.PlanTypeStandard
	name := strings.ToLower(pkg.Name)
	switch {
	case pkg.DataAmount == -1 || strings.Contains(name, "unlimited"):
		planType = domain.PlanTypeUnlimited
	case len(pkg.RegionList) > 1 || strings.Contains(name, "global"):
		planType = domain.PlanTypeGlobal
	}

	plan := &domain.Plan{
		Name:           pkg.Name,
		Type:           planType,
		ValidityDays:   pkg.ValidityDays,
		Currency:       "EUR",
		PackageCode:    pkg.PackageCode,
		TopupAvailable: pkg.IsTopUpAvailable,
	}
	if len(pkg.RegionList) > 0 {
		plan.Region = pkg.RegionList[0]
	}
	if len(pkg.CountryList) > 0 {
		plan.Country = pkg.CountryList[0]
	}
	if pkg.DataAmount > 0 {
		plan.DataAmountGB = float64(pkg.DataAmount) / 1024 // provider reports MB
	}
	return plan
}
