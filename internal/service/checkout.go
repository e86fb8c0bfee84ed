package service

import (
	"context"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/pkg/payment"
)

// CustomerDirectory resolves checkout emails to user accounts.
type CustomerDirectory interface {
	FindOrCreateCustomer(ctx context.Context, email string) (*domain.User, error)
}

// PlanCatalog adds package-code lookup on top of PlanReader, used to price
// topup packages that are also sold as plans.
type PlanCatalog interface {
	PlanReader
	FindByPackageCode(ctx context.Context, code string) (*domain.Plan, error)
}

// CheckoutService builds payment-provider checkout sessions for plan orders
// and topups. The session metadata is the only channel carrying purchase
// intent to the completion webhook.
type CheckoutService struct {
	gateway     payment.Gateway
	plans       PlanCatalog
	esims       ActivationStore
	customers   CustomerDirectory
	frontendURL string
	validate    *validator.Validate
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(gateway payment.Gateway, plans PlanCatalog, esims ActivationStore, customers CustomerDirectory, frontendURL string) *CheckoutService {
	return &CheckoutService{
		gateway:     gateway,
		plans:       plans,
		esims:       esims,
		customers:   customers,
		frontendURL: frontendURL,
		validate:    validator.New(),
	}
}

// CreateOrderSession starts a plan purchase: resolves (or creates) the
// customer, then creates a checkout session priced from the stored plan.
// A zero price is not rejected here: a misconfigured plan still produces a
// session, which is the storefront's documented gap.
func (s *CheckoutService) CreateOrderSession(ctx context.Context, req *domain.CreateOrderRequest) (*domain.CheckoutResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	plan, err := s.plans.FindByID(ctx, req.PlanID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load plan", err)
	}
	if plan == nil {
		return nil, domain.ErrNotFound("plan not found")
	}

	user, err := s.customers.FindOrCreateCustomer(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.SessionParams{
		ProductName:   plan.Name,
		AmountCents:   plan.PriceCents,
		Currency:      plan.Currency,
		CustomerEmail: req.Email,
		SuccessURL:    s.frontendURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.frontendURL + "/cancel",
		Metadata: map[string]string{
			payment.MetaType:   payment.TypeOrder,
			payment.MetaPlanID: plan.ID,
			payment.MetaUserID: user.ID,
		},
	})
	if err != nil {
		return nil, domain.ErrInternal("failed to create checkout session", err)
	}

	log.Printf("[Checkout] order session %s created (plan %s, user %s)", session.ID, plan.ID, user.ID)
	return &domain.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// CreateTopupSession starts a topup purchase for an existing eSIM, resolved
// by ICCID. The topup package is one of the provider's packages, not a local
// plan, so it is priced by the plan that carries its package code when one
// exists, else a flat default.
func (s *CheckoutService) CreateTopupSession(ctx context.Context, req *domain.CreateTopupRequest) (*domain.CheckoutResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	esim, err := s.esims.FindByICCID(ctx, req.ICCID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load esim", err)
	}
	if esim == nil {
		return nil, domain.ErrNotFound("no eSIM with that ICCID")
	}

	amount := int64(1000)
	currency := "EUR"
	name := "Top Up"
	if plan, err := s.plans.FindByPackageCode(ctx, req.TopupPackageID); err == nil && plan != nil && plan.PriceCents > 0 {
		amount = plan.PriceCents
		currency = plan.Currency
		name = plan.Name + " Top Up"
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.SessionParams{
		ProductName: name,
		AmountCents: amount,
		Currency:    currency,
		SuccessURL:  s.frontendURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.frontendURL + "/cancel",
		Metadata: map[string]string{
			payment.MetaType:           payment.TypeTopup,
			payment.MetaEsimID:         esim.ID,
			payment.MetaTopupPackageID: req.TopupPackageID,
		},
	})
	if err != nil {
		return nil, domain.ErrInternal("failed to create checkout session", err)
	}

	log.Printf("[Checkout] topup session %s created (esim %s, package %s)", session.ID, esim.ID, req.TopupPackageID)
	return &domain.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}
