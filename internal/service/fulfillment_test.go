package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/pkg/esimaccess"
)

// fakeProvider scripts provider responses per package code / order number.
type fakeProvider struct {
	mu          sync.Mutex
	submitCalls []string // package codes in submission order
	submitErr   map[string]error
	orderNo     string

	queryCalls   int
	readyAfter   int // QueryOrder returns pending until this many calls
	queryErrOnce error

	topupCalls []string
	topupNo    string
	topupErr   error
}

func (f *fakeProvider) SubmitOrder(ctx context.Context, packageCode string, quantity int, transactionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls = append(f.submitCalls, packageCode)
	if err := f.submitErr[packageCode]; err != nil {
		return "", err
	}
	if f.orderNo == "" {
		return "B23072001", nil
	}
	return f.orderNo, nil
}

func (f *fakeProvider) QueryOrder(ctx context.Context, orderNo string) (esimaccess.ProvisioningStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.queryErrOnce != nil {
		err := f.queryErrOnce
		f.queryErrOnce = nil
		return esimaccess.ProvisioningStatus{}, err
	}
	if f.queryCalls < f.readyAfter {
		return esimaccess.ProvisioningStatus{State: esimaccess.StatePending}, nil
	}
	return esimaccess.ProvisioningStatus{
		State: esimaccess.StateReady,
		Profile: &esimaccess.Profile{
			OrderNo:        orderNo,
			ICCID:          "8944538532008765432",
			ActivationCode: "K2-ABCDE-12345",
			SmdpAddress:    "rsp.esimaccess.com",
			QRCode:         "LPA:1$rsp.esimaccess.com$K2-ABCDE-12345",
		},
	}, nil
}

func (f *fakeProvider) TopUp(ctx context.Context, iccid, packageCode string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topupCalls = append(f.topupCalls, iccid+"/"+packageCode)
	return f.topupNo, f.topupErr
}

// fakeActivationStore is an in-memory ActivationStore with the same
// session-uniqueness semantics as the esims table.
type fakeActivationStore struct {
	mu        sync.Mutex
	bySession map[string]*domain.Esim
	topups    []*domain.Topup
}

func newFakeActivationStore() *fakeActivationStore {
	return &fakeActivationStore{bySession: map[string]*domain.Esim{}}
}

func (f *fakeActivationStore) CreateIfAbsent(ctx context.Context, e *domain.Esim) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bySession[e.CheckoutSessionID]; ok {
		return false, nil
	}
	f.bySession[e.CheckoutSessionID] = e
	return true, nil
}

func (f *fakeActivationStore) FindBySessionID(ctx context.Context, sessionID string) (*domain.Esim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySession[sessionID], nil
}

func (f *fakeActivationStore) FindByID(ctx context.Context, id string) (*domain.Esim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.bySession {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeActivationStore) FindByICCID(ctx context.Context, iccid string) (*domain.Esim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.bySession {
		if e.ICCID == iccid && iccid != "" {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeActivationStore) MarkActiveByOrderNo(ctx context.Context, orderNo string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.bySession {
		if e.ProviderOrderNo == orderNo {
			e.Status = domain.EsimStatusActive
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeActivationStore) AppendTopup(ctx context.Context, t *domain.Topup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topups = append(f.topups, t)
	return nil
}

func (f *fakeActivationStore) ListTopups(ctx context.Context, esimID string) ([]*domain.Topup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Topup
	for _, t := range f.topups {
		if t.EsimID == esimID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeActivationStore) ListAll(ctx context.Context) ([]*domain.Esim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Esim
	for _, e := range f.bySession {
		out = append(out, e)
	}
	return out, nil
}

// fakePlanStore backs both PlanReader and the catalog's PlanStore.
type fakePlanStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Plan
	created []*domain.Plan
	updated []*domain.Plan
	pricing []string // ids UpdatePricing was called with
}

func newFakePlanStore(plans ...*domain.Plan) *fakePlanStore {
	f := &fakePlanStore{byID: map[string]*domain.Plan{}}
	for _, p := range plans {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakePlanStore) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakePlanStore) FindByPackageCode(ctx context.Context, code string) (*domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.PackageCode == code {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePlanStore) ListAll(ctx context.Context) ([]*domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Plan
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePlanStore) Create(ctx context.Context, p *domain.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[p.ID] = p
	f.created = append(f.created, p)
	return nil
}

func (f *fakePlanStore) UpdateCatalogFields(ctx context.Context, p *domain.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, p)
	return nil
}

func (f *fakePlanStore) UpdatePricing(ctx context.Context, id string, priceCents *int64, currency, name *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pricing = append(f.pricing, id)
	p, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("no plan %s", id)
	}
	if priceCents != nil {
		p.PriceCents = *priceCents
	}
	if currency != nil {
		p.Currency = *currency
	}
	if name != nil {
		p.Name = *name
	}
	return nil
}

func testOptions() FulfillmentOptions {
	return FulfillmentOptions{
		FallbackPackageCode: "CKH006",
		PollInterval:        time.Millisecond,
		PollMaxAttempts:     3,
	}
}

func testPlan() *domain.Plan {
	return &domain.Plan{
		ID:          "plan-1",
		Name:        "Europe 10GB",
		PackageCode: "EU10GB30D",
		PriceCents:  1999,
		Currency:    "EUR",
	}
}

func TestFulfillOrderHappyPath(t *testing.T) {
	provider := &fakeProvider{readyAfter: 2}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	err := svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1")
	require.NoError(t, err)

	esim, err := store.FindBySessionID(context.Background(), "cs_1")
	require.NoError(t, err)
	require.NotNil(t, esim)
	assert.Equal(t, domain.EsimStatusActive, esim.Status)
	assert.Equal(t, "8944538532008765432", esim.ICCID)
	assert.Equal(t, "K2-ABCDE-12345", esim.ActivationCode)
	assert.Equal(t, "rsp.esimaccess.com", esim.SmdpAddress)
	assert.Equal(t, "user-1", esim.UserID)
	assert.Equal(t, []string{"EU10GB30D"}, provider.submitCalls)
}

func TestFulfillOrderFallbackSubstitution(t *testing.T) {
	provider := &fakeProvider{
		readyAfter: 1,
		submitErr:  map[string]error{"EU10GB30D": fmt.Errorf("declined: %w", esimaccess.ErrInvalidPackage)},
	}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	err := svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1")
	require.NoError(t, err)

	// Original code first, fallback second, nothing after.
	assert.Equal(t, []string{"EU10GB30D", "CKH006"}, provider.submitCalls)

	esim, _ := store.FindBySessionID(context.Background(), "cs_1")
	require.NotNil(t, esim)
	assert.Equal(t, domain.EsimStatusActive, esim.Status)
}

func TestFulfillOrderFallbackAlsoRejected(t *testing.T) {
	provider := &fakeProvider{
		submitErr: map[string]error{
			"EU10GB30D": fmt.Errorf("declined: %w", esimaccess.ErrInvalidPackage),
			"CKH006":    fmt.Errorf("declined: %w", esimaccess.ErrInvalidPackage),
		},
	}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	err := svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderRejected)

	// Exactly two submissions: the substitution never recurses.
	assert.Len(t, provider.submitCalls, 2)

	esim, _ := store.FindBySessionID(context.Background(), "cs_1")
	require.NotNil(t, esim)
	assert.Equal(t, domain.EsimStatusRejected, esim.Status)
	assert.Empty(t, esim.ICCID)
}

func TestFulfillOrderNoFallbackForOtherErrors(t *testing.T) {
	provider := &fakeProvider{
		submitErr: map[string]error{"EU10GB30D": esimaccess.ErrUnavailable},
	}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	err := svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderRejected)
	assert.Equal(t, []string{"EU10GB30D"}, provider.submitCalls)
}

func TestFulfillOrderPollTimeout(t *testing.T) {
	provider := &fakeProvider{readyAfter: 100}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	err := svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvisioningTimeout)
	assert.Equal(t, 3, provider.queryCalls)

	esim, _ := store.FindBySessionID(context.Background(), "cs_1")
	require.NotNil(t, esim)
	assert.Equal(t, domain.EsimStatusTimeout, esim.Status)
	assert.Equal(t, "B23072001", esim.ProviderOrderNo)
}

func TestFulfillOrderTransientQueryErrorConsumesAttempt(t *testing.T) {
	provider := &fakeProvider{
		readyAfter:   2,
		queryErrOnce: errors.New("connection reset"),
	}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	// Attempt one fails on transport, attempt two succeeds.
	err := svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.queryCalls)
}

func TestFulfillOrderIdempotent(t *testing.T) {
	provider := &fakeProvider{readyAfter: 1}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	require.NoError(t, svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1"))
	require.NoError(t, svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1"))

	// Second delivery never reaches the provider.
	assert.Len(t, provider.submitCalls, 1)

	all, _ := store.ListAll(context.Background())
	assert.Len(t, all, 1)
}

func TestFulfillOrderUsesFallbackForUncodedPlan(t *testing.T) {
	plan := testPlan()
	plan.PackageCode = ""
	provider := &fakeProvider{readyAfter: 1}
	store := newFakeActivationStore()
	plans := newFakePlanStore(plan)
	svc := NewFulfillmentService(provider, store, plans, testOptions())

	require.NoError(t, svc.FulfillOrder(context.Background(), "cs_1", "plan-1", "user-1"))
	assert.Equal(t, []string{"CKH006"}, provider.submitCalls)
}

func TestFulfillOrderUnknownPlan(t *testing.T) {
	provider := &fakeProvider{}
	store := newFakeActivationStore()
	svc := NewFulfillmentService(provider, store, newFakePlanStore(), testOptions())

	err := svc.FulfillOrder(context.Background(), "cs_1", "missing", "user-1")
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
	assert.Empty(t, provider.submitCalls)
}

func TestFulfillOrderContextCancelled(t *testing.T) {
	provider := &fakeProvider{readyAfter: 100}
	store := newFakeActivationStore()
	plans := newFakePlanStore(testPlan())
	opts := testOptions()
	opts.PollInterval = time.Minute
	svc := NewFulfillmentService(provider, store, plans, opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.FulfillOrder(ctx, "cs_1", "plan-1", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFulfillTopup(t *testing.T) {
	provider := &fakeProvider{topupNo: "T23072001"}
	store := newFakeActivationStore()
	_, err := store.CreateIfAbsent(context.Background(), &domain.Esim{
		ID:                "esim-1",
		CheckoutSessionID: "cs_orig",
		ICCID:             "8944538532008765432",
		Status:            domain.EsimStatusActive,
	})
	require.NoError(t, err)
	svc := NewFulfillmentService(provider, store, newFakePlanStore(), testOptions())

	err = svc.FulfillTopup(context.Background(), "cs_topup", "esim-1", "TOPUP5GB", 999)
	require.NoError(t, err)

	assert.Equal(t, []string{"8944538532008765432/TOPUP5GB"}, provider.topupCalls)
	require.Len(t, store.topups, 1)
	top := store.topups[0]
	assert.Equal(t, "esim-1", top.EsimID)
	assert.Equal(t, "TOPUP5GB", top.PackageCode)
	assert.Equal(t, "T23072001", top.ProviderTopupID)
	assert.Equal(t, int64(999), top.AmountCents)
}

func TestFulfillTopupUnknownEsim(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewFulfillmentService(provider, newFakeActivationStore(), newFakePlanStore(), testOptions())

	err := svc.FulfillTopup(context.Background(), "cs_topup", "nope", "TOPUP5GB", 999)
	require.Error(t, err)
	assert.Empty(t, provider.topupCalls)
}

func TestFulfillTopupProviderFailure(t *testing.T) {
	provider := &fakeProvider{topupErr: esimaccess.ErrUnavailable}
	store := newFakeActivationStore()
	_, _ = store.CreateIfAbsent(context.Background(), &domain.Esim{
		ID: "esim-1", CheckoutSessionID: "cs_orig", ICCID: "89445", Status: domain.EsimStatusActive,
	})
	svc := NewFulfillmentService(provider, store, newFakePlanStore(), testOptions())

	err := svc.FulfillTopup(context.Background(), "cs_topup", "esim-1", "TOPUP5GB", 999)
	require.Error(t, err)
	assert.Empty(t, store.topups)
}

func TestMarkOrderActive(t *testing.T) {
	store := newFakeActivationStore()
	_, _ = store.CreateIfAbsent(context.Background(), &domain.Esim{
		ID:                "esim-1",
		CheckoutSessionID: "cs_1",
		ProviderOrderNo:   "B23072001",
		Status:            domain.EsimStatusTimeout,
	})
	svc := NewFulfillmentService(&fakeProvider{}, store, newFakePlanStore(), testOptions())

	require.NoError(t, svc.MarkOrderActive(context.Background(), "B23072001"))
	esim, _ := store.FindBySessionID(context.Background(), "cs_1")
	assert.Equal(t, domain.EsimStatusActive, esim.Status)

	// Unknown order numbers are ignored, not errors.
	require.NoError(t, svc.MarkOrderActive(context.Background(), "B00000000"))
}

func TestMarkOrderActiveEmptyOrderNoLeavesFailuresAlone(t *testing.T) {
	// Rejected submits persist with an empty provider order number. A provider
	// event that resolves to an empty order number must not touch them.
	store := newFakeActivationStore()
	_, _ = store.CreateIfAbsent(context.Background(), &domain.Esim{
		ID:                "esim-1",
		CheckoutSessionID: "cs_1",
		ProviderOrderNo:   "",
		Status:            domain.EsimStatusRejected,
	})
	svc := NewFulfillmentService(&fakeProvider{}, store, newFakePlanStore(), testOptions())

	require.NoError(t, svc.MarkOrderActive(context.Background(), ""))

	esim, _ := store.FindBySessionID(context.Background(), "cs_1")
	assert.Equal(t, domain.EsimStatusRejected, esim.Status)
}
