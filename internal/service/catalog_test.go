package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/repository"
	"github.com/voyasim/backend/pkg/esimaccess"
)

type fakePackageLister struct {
	packages []esimaccess.Package
	err      error
}

func (f *fakePackageLister) ListPackages(ctx context.Context) ([]esimaccess.Package, error) {
	return f.packages, f.err
}

type fakeSyncBookkeeper struct {
	keys    []string
	data    []interface{}
	entries map[string]*repository.CacheEntry
}

func (f *fakeSyncBookkeeper) Set(ctx context.Context, key string, data interface{}) error {
	f.keys = append(f.keys, key)
	f.data = append(f.data, data)

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if f.entries == nil {
		f.entries = make(map[string]*repository.CacheEntry)
	}
	f.entries[key] = &repository.CacheEntry{Key: key, Data: payload, UpdatedAt: time.Now()}
	return nil
}

func (f *fakeSyncBookkeeper) Get(ctx context.Context, key string) (*repository.CacheEntry, error) {
	return f.entries[key], nil
}

func TestSyncCreatesAndUpdates(t *testing.T) {
	existing := testPlan() // package EU10GB30D, priced at 1999 EUR
	plans := newFakePlanStore(existing)
	provider := &fakePackageLister{packages: []esimaccess.Package{
		{PackageCode: "EU10GB30D", Name: "Europe 10GB v2", DataAmount: 10240, ValidityDays: 30, RegionList: []string{"Europe"}},
		{PackageCode: "ASIA5GB", Name: "Asia 5GB", DataAmount: 5120, ValidityDays: 15, RegionList: []string{"Asia"}, CountryList: []string{"JP"}, IsTopUpAvailable: true},
	}}
	cache := &fakeSyncBookkeeper{}
	svc := NewCatalogService(plans, provider, cache)

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)

	// Known package refreshed in place, never re-created.
	require.Len(t, plans.updated, 1)
	assert.Equal(t, "EU10GB30D", plans.updated[0].PackageCode)

	// New package lands unpriced; pricing is an admin step.
	require.Len(t, plans.created, 1)
	created := plans.created[0]
	assert.Equal(t, "ASIA5GB", created.PackageCode)
	assert.Equal(t, int64(0), created.PriceCents)
	assert.Equal(t, "EUR", created.Currency)
	assert.Equal(t, float64(5), created.DataAmountGB)
	assert.Equal(t, "Asia", created.Region)
	assert.Equal(t, "JP", created.Country)
	assert.True(t, created.TopupAvailable)
	assert.NotEmpty(t, created.ID)

	// Outcome recorded for the admin dashboard.
	assert.Equal(t, []string{"esim_catalog_sync"}, cache.keys)
}

func TestLastSync(t *testing.T) {
	provider := &fakePackageLister{packages: []esimaccess.Package{
		{PackageCode: "ASIA5GB", Name: "Asia 5GB", DataAmount: 5120, ValidityDays: 15},
	}}
	svc := NewCatalogService(newFakePlanStore(), provider, &fakeSyncBookkeeper{})

	// Nothing recorded before the first sync.
	result, err := svc.LastSync(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)

	synced, err := svc.Sync(context.Background())
	require.NoError(t, err)

	result, err = svc.LastSync(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, synced.Total, result.Total)
	assert.Equal(t, synced.Created, result.Created)
	assert.WithinDuration(t, synced.SyncedAt, result.SyncedAt, time.Second)
}

func TestSyncProviderFailure(t *testing.T) {
	provider := &fakePackageLister{err: esimaccess.ErrUnavailable}
	svc := NewCatalogService(newFakePlanStore(), provider, &fakeSyncBookkeeper{})

	_, err := svc.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, esimaccess.ErrUnavailable)
}

func TestPlanFromPackageClassification(t *testing.T) {
	tests := []struct {
		name string
		pkg  esimaccess.Package
		want string
	}{
		{"standard", esimaccess.Package{Name: "Japan 3GB", DataAmount: 3072, RegionList: []string{"Asia"}}, domain.PlanTypeStandard},
		{"unlimited flag", esimaccess.Package{Name: "Japan Daily", DataAmount: -1}, domain.PlanTypeUnlimited},
		{"unlimited by name", esimaccess.Package{Name: "Europe Unlimited", DataAmount: 1024}, domain.PlanTypeUnlimited},
		{"global by regions", esimaccess.Package{Name: "World 10GB", DataAmount: 10240, RegionList: []string{"Europe", "Asia"}}, domain.PlanTypeGlobal},
		{"global by name", esimaccess.Package{Name: "Global 20GB", DataAmount: 20480}, domain.PlanTypeGlobal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planFromPackage(&tt.pkg)
			assert.Equal(t, tt.want, plan.Type)
		})
	}
}

func TestGetPlan(t *testing.T) {
	svc := NewCatalogService(newFakePlanStore(testPlan()), &fakePackageLister{}, &fakeSyncBookkeeper{})

	plan, err := svc.GetPlan(context.Background(), "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "Europe 10GB", plan.Name)

	_, err = svc.GetPlan(context.Background(), "missing")
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}

func TestUpdatePlanPricing(t *testing.T) {
	plans := newFakePlanStore(testPlan())
	svc := NewCatalogService(plans, &fakePackageLister{}, &fakeSyncBookkeeper{})

	price := int64(2499)
	updated, err := svc.UpdatePlan(context.Background(), "plan-1", &domain.UpdatePlanRequest{PriceCents: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(2499), updated.PriceCents)
	assert.Equal(t, "EUR", updated.Currency) // untouched fields keep their value

	_, err = svc.UpdatePlan(context.Background(), "missing", &domain.UpdatePlanRequest{PriceCents: &price})
	require.Error(t, err)
}
