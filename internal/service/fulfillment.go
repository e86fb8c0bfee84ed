package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/pkg/esimaccess"
)

// Terminal fulfillment failures. Both leave a failed activation record behind
// so the charge can be reconciled manually.
var (
	// ErrOrderRejected means the provider declined the order even after the
	// one-shot fallback package substitution.
	ErrOrderRejected = errors.New("fulfillment: provider rejected order")
	// ErrProvisioningTimeout means the poll budget ran out before the
	// provider reported provisioning data.
	ErrProvisioningTimeout = errors.New("fulfillment: provisioning not ready within poll budget")
)

// ProvisioningClient is the slice of the provider API the orchestrator needs.
type ProvisioningClient interface {
	SubmitOrder(ctx context.Context, packageCode string, quantity int, transactionID string) (string, error)
	QueryOrder(ctx context.Context, orderNo string) (esimaccess.ProvisioningStatus, error)
	TopUp(ctx context.Context, iccid, packageCode string) (string, error)
}

// ActivationStore persists activation records and topup history.
type ActivationStore interface {
	CreateIfAbsent(ctx context.Context, e *domain.Esim) (bool, error)
	FindBySessionID(ctx context.Context, sessionID string) (*domain.Esim, error)
	FindByID(ctx context.Context, id string) (*domain.Esim, error)
	FindByICCID(ctx context.Context, iccid string) (*domain.Esim, error)
	MarkActiveByOrderNo(ctx context.Context, orderNo string) (bool, error)
	AppendTopup(ctx context.Context, t *domain.Topup) error
	ListTopups(ctx context.Context, esimID string) ([]*domain.Topup, error)
	ListAll(ctx context.Context) ([]*domain.Esim, error)
}

// PlanReader resolves plans to provider package codes.
type PlanReader interface {
	FindByID(ctx context.Context, id string) (*domain.Plan, error)
}

// FulfillmentOptions tune the poll loop and the fallback substitution.
type FulfillmentOptions struct {
	// FallbackPackageCode is tried exactly once when the plan's own code is
	// rejected as unknown. Never recurses.
	FallbackPackageCode string
	PollInterval        time.Duration
	PollMaxAttempts     int
}

// FulfillmentService owns the Checkout Session → Order → Activation Record
// transition. Nothing else writes activation records.
type FulfillmentService struct {
	provider ProvisioningClient
	esims    ActivationStore
	plans    PlanReader
	opts     FulfillmentOptions
}

// NewFulfillmentService creates a FulfillmentService.
func NewFulfillmentService(provider ProvisioningClient, esims ActivationStore, plans PlanReader, opts FulfillmentOptions) *FulfillmentService {
	return &FulfillmentService{provider: provider, esims: esims, plans: plans, opts: opts}
}

// FulfillOrder runs the full order fulfillment for one completed checkout
// session: submit (with one fallback substitution) → poll until provisioned →
// persist exactly one activation record keyed by the session id. A repeat
// invocation for a session that already has a record is a no-op, since
// payment webhooks are delivered at least once.
func (s *FulfillmentService) FulfillOrder(ctx context.Context, sessionID, planID, userID string) error {
	existing, err := s.esims.FindBySessionID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("idempotency check for session %s: %w", sessionID, err)
	}
	if existing != nil {
		log.Printf("[Fulfillment] session %s already fulfilled (esim %s), skipping", sessionID, existing.ID)
		return nil
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", planID, err)
	}
	if plan == nil {
		return domain.ErrNotFound("plan " + planID + " not found")
	}

	packageCode := plan.PackageCode
	if packageCode == "" {
		packageCode = s.opts.FallbackPackageCode
	}

	orderNo, err := s.submitWithFallback(ctx, packageCode)
	if err != nil {
		s.persistFailure(ctx, sessionID, planID, userID, "", domain.EsimStatusRejected)
		return err
	}

	log.Printf("[Fulfillment] order %s created for session %s, polling for provisioning data", orderNo, sessionID)

	profile, err := s.pollProvisioning(ctx, orderNo)
	if err != nil {
		s.persistFailure(ctx, sessionID, planID, userID, orderNo, domain.EsimStatusTimeout)
		return err
	}

	now := time.Now()
	inserted, err := s.esims.CreateIfAbsent(ctx, &domain.Esim{
		ID:                domain.NewID(),
		UserID:            userID,
		PlanID:            planID,
		CheckoutSessionID: sessionID,
		ProviderOrderNo:   profile.OrderNo,
		ICCID:             profile.ICCID,
		ActivationCode:    profile.ActivationCode,
		SmdpAddress:       profile.SmdpAddress,
		QRCode:            profile.QRCode,
		Status:            domain.EsimStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return fmt.Errorf("persist activation record for session %s: %w", sessionID, err)
	}
	if !inserted {
		// Lost the race against a concurrent delivery of the same event.
		log.Printf("[Fulfillment] session %s fulfilled concurrently, discarding duplicate", sessionID)
		return nil
	}

	log.Printf("[Fulfillment] eSIM %s provisioned for session %s (order %s)", profile.ICCID, sessionID, profile.OrderNo)
	return nil
}

// submitWithFallback submits the order, substituting the fallback package code
// exactly once when the provider rejects the code as unknown. Each attempt
// carries a fresh transaction id so the provider's own dedup never replays a
// rejected submission.
func (s *FulfillmentService) submitWithFallback(ctx context.Context, packageCode string) (string, error) {
	orderNo, err := s.provider.SubmitOrder(ctx, packageCode, 1, newTransactionID())
	if err == nil {
		return orderNo, nil
	}
	if !errors.Is(err, esimaccess.ErrInvalidPackage) || packageCode == s.opts.FallbackPackageCode {
		return "", fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}

	log.Printf("[Fulfillment] package %s rejected, retrying once with fallback %s", packageCode, s.opts.FallbackPackageCode)
	orderNo, err = s.provider.SubmitOrder(ctx, s.opts.FallbackPackageCode, 1, newTransactionID())
	if err != nil {
		return "", fmt.Errorf("%w: fallback %s: %v", ErrOrderRejected, s.opts.FallbackPackageCode, err)
	}
	return orderNo, nil
}

// pollProvisioning waits PollInterval then queries, up to PollMaxAttempts
// times. Transport errors are logged and consume an attempt rather than
// aborting; the provider regularly answers "getting resource" right after
// order creation.
func (s *FulfillmentService) pollProvisioning(ctx context.Context, orderNo string) (*esimaccess.Profile, error) {
	for attempt := 1; attempt <= s.opts.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}

		status, err := s.provider.QueryOrder(ctx, orderNo)
		if err != nil {
			log.Printf("[Fulfillment] query attempt %d/%d for order %s failed: %v", attempt, s.opts.PollMaxAttempts, orderNo, err)
			continue
		}
		if status.State == esimaccess.StateReady {
			log.Printf("[Fulfillment] provisioning data ready for order %s on attempt %d", orderNo, attempt)
			return status.Profile, nil
		}
		log.Printf("[Fulfillment] order %s not ready yet (attempt %d/%d)", orderNo, attempt, s.opts.PollMaxAttempts)
	}
	return nil, fmt.Errorf("%w: order %s after %d attempts", ErrProvisioningTimeout, orderNo, s.opts.PollMaxAttempts)
}

// persistFailure records a terminal failed attempt under the session id so the
// read path and manual reconciliation can see it. Best effort: a failure to
// record a failure is only logged.
func (s *FulfillmentService) persistFailure(ctx context.Context, sessionID, planID, userID, orderNo, status string) {
	now := time.Now()
	if _, err := s.esims.CreateIfAbsent(ctx, &domain.Esim{
		ID:                domain.NewID(),
		UserID:            userID,
		PlanID:            planID,
		CheckoutSessionID: sessionID,
		ProviderOrderNo:   orderNo,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		log.Printf("[Fulfillment] failed to record %s outcome for session %s: %v", status, sessionID, err)
	}
}

// FulfillTopup applies a paid topup to an existing eSIM. Single request, no
// polling; a provider failure is reported to the caller (and logged at the
// webhook boundary), never retried automatically.
func (s *FulfillmentService) FulfillTopup(ctx context.Context, sessionID, esimID, topupPackageID string, amountCents int64) error {
	esim, err := s.esims.FindByID(ctx, esimID)
	if err != nil {
		return fmt.Errorf("load esim %s: %w", esimID, err)
	}
	if esim == nil {
		return domain.ErrNotFound("esim " + esimID + " not found")
	}

	topupNo, err := s.provider.TopUp(ctx, esim.ICCID, topupPackageID)
	if err != nil {
		return fmt.Errorf("topup %s for esim %s: %w", topupPackageID, esimID, err)
	}
	if topupNo == "" {
		topupNo = "TOPUP-" + domain.NewID()
	}

	if err := s.esims.AppendTopup(ctx, &domain.Topup{
		ID:                domain.NewID(),
		EsimID:            esimID,
		PackageCode:       topupPackageID,
		ProviderTopupID:   topupNo,
		CheckoutSessionID: sessionID,
		AmountCents:       amountCents,
		CreatedAt:         time.Now(),
	}); err != nil {
		return fmt.Errorf("record topup for esim %s: %w", esimID, err)
	}

	log.Printf("[Fulfillment] topup %s applied to eSIM %s (session %s)", topupNo, esim.ICCID, sessionID)
	return nil
}

// MarkOrderActive handles a provider completion event for an order. An empty
// order number is dropped: failed-fulfillment rows persist with an empty
// provider_order_no, and a blank match would flip the whole reconciliation
// queue to active.
func (s *FulfillmentService) MarkOrderActive(ctx context.Context, orderNo string) error {
	if orderNo == "" {
		log.Printf("[Fulfillment] provider event without order number, ignoring")
		return nil
	}

	matched, err := s.esims.MarkActiveByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if !matched {
		log.Printf("[Fulfillment] provider event for unknown order %s, ignoring", orderNo)
	}
	return nil
}

func newTransactionID() string {
	return "ORD-" + uuid.New().String()
}
