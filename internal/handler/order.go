package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/service"
)

// OrderHandler handles purchase entry points and the activation read path.
type OrderHandler struct {
	checkout *service.CheckoutService
	esims    service.ActivationStore
	plans    service.PlanReader
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(checkout *service.CheckoutService, esims service.ActivationStore, plans service.PlanReader) *OrderHandler {
	return &OrderHandler{checkout: checkout, esims: esims, plans: plans}
}

// CreateOrder handles POST /api/order.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.checkout.CreateOrderSession(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// CreateTopup handles POST /api/topup.
func (h *OrderHandler) CreateTopup(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTopupRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.checkout.CreateTopupSession(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// GetStatus handles GET /api/order/{sessionId}. This projection is the
// durable contract of the activation record: the success page polls it until
// the eSIM shows up or the attempt lands in a terminal failure state.
func (h *OrderHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	esim, err := h.esims.FindBySessionID(r.Context(), sessionID)
	if err != nil {
		Error(w, domain.ErrInternal("failed to load order", err))
		return
	}
	if esim == nil {
		Error(w, domain.ErrNotFound("no order for that session"))
		return
	}

	resp := domain.OrderStatusResponse{
		ICCID:          esim.ICCID,
		ActivationCode: esim.ActivationCode,
		SmdpAddress:    esim.SmdpAddress,
		QRCode:         esim.QRCode,
		Status:         esim.Status,
	}
	if esim.PlanID != "" {
		if plan, err := h.plans.FindByID(r.Context(), esim.PlanID); err == nil && plan != nil {
			resp.PlanName = plan.Name
		}
	}

	JSON(w, http.StatusOK, resp)
}
