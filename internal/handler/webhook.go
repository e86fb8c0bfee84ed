package handler

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/service"
	"github.com/voyasim/backend/pkg/payment"
)

// WebhookHandler receives payment and provisioning-provider events and routes
// them into fulfillment.
//
// The payment path is a deliberate error-isolation boundary: once a
// well-formed completion event is in hand, the response is always 200. A
// provisioning failure after a successful charge is logged with enough
// context for manual reconciliation, never propagated. The provider would
// otherwise redeliver forever and the customer could end up double-charged.
type WebhookHandler struct {
	gateway     payment.Gateway
	fulfillment *service.FulfillmentService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(gateway payment.Gateway, fulfillment *service.FulfillmentService) *WebhookHandler {
	return &WebhookHandler{gateway: gateway, fulfillment: fulfillment}
}

// HandlePayment handles POST /api/webhooks/payment.
func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		Error(w, domain.ErrBadRequest("failed to read body"))
		return
	}

	if !h.gateway.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature")) {
		Error(w, domain.ErrBadRequest("invalid signature"))
		return
	}

	var event payment.Event
	if err := json.Unmarshal(body, &event); err != nil {
		Error(w, domain.ErrBadRequest("invalid JSON"))
		return
	}

	if event.Type == payment.EventCheckoutCompleted {
		h.dispatchCompletedSession(r, &event.Data.Object)
	}

	JSON(w, http.StatusOK, map[string]bool{"received": true})
}

// dispatchCompletedSession routes a completed checkout session by the intent
// recorded in its metadata. All fulfillment errors stop here.
func (h *WebhookHandler) dispatchCompletedSession(r *http.Request, session *payment.CheckoutSessionObject) {
	meta := session.Metadata

	switch meta[payment.MetaType] {
	case payment.TypeOrder:
		err := h.fulfillment.FulfillOrder(r.Context(), session.ID, meta[payment.MetaPlanID], meta[payment.MetaUserID])
		if err != nil {
			log.Printf("[Webhook] order fulfillment failed (session=%s plan=%s): %v; payment acknowledged, needs manual reconciliation",
				session.ID, meta[payment.MetaPlanID], err)
		}
	case payment.TypeTopup:
		err := h.fulfillment.FulfillTopup(r.Context(), session.ID, meta[payment.MetaEsimID], meta[payment.MetaTopupPackageID], session.AmountTotal)
		if err != nil {
			log.Printf("[Webhook] topup fulfillment failed (session=%s esim=%s): %v; payment acknowledged, needs manual reconciliation",
				session.ID, meta[payment.MetaEsimID], err)
		}
	default:
		log.Printf("[Webhook] completed session %s without routable metadata, ignoring", session.ID)
	}
}

// providerEvent is the provisioning provider's webhook envelope. The provider
// is inconsistent about field names across event kinds, hence the aliases.
type providerEvent struct {
	EventType string `json:"eventType"`
	Type      string `json:"type"`
	OrderNo   string `json:"orderNo"`
	OrderID   string `json:"orderId"`
	TopupNo   string `json:"topupNo"`
	ICCID     string `json:"iccid"`
}

func (e *providerEvent) kind() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Type
}

func (e *providerEvent) orderNo() string {
	if e.OrderNo != "" {
		return e.OrderNo
	}
	return e.OrderID
}

// HandleProvider handles POST /api/webhooks/provider.
func (h *WebhookHandler) HandleProvider(w http.ResponseWriter, r *http.Request) {
	var event providerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		Error(w, domain.ErrBadRequest("invalid JSON"))
		return
	}

	switch event.kind() {
	case "order.completed", "order.activated":
		if err := h.fulfillment.MarkOrderActive(r.Context(), event.orderNo()); err != nil {
			log.Printf("[Webhook] provider order event for %s failed: %v", event.orderNo(), err)
		}
	case "topup.completed":
		log.Printf("[Webhook] provider topup %s completed (iccid=%s)", event.TopupNo, event.ICCID)
	default:
		log.Printf("[Webhook] unknown provider event type %q, ignoring", event.kind())
	}

	JSON(w, http.StatusOK, map[string]bool{"received": true})
}
