package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voyasim/backend/internal/contextkeys"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/service"
)

// PlansHandler handles plan catalog endpoints.
type PlansHandler struct {
	catalog *service.CatalogService
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(catalog *service.CatalogService) *PlansHandler {
	return &PlansHandler{catalog: catalog}
}

// List handles GET /api/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.ListPlans(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plans)
}

// GetByID handles GET /api/plans/{id}.
func (h *PlansHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	plan, err := h.catalog.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plan)
}

// Update handles PATCH /api/admin/plans/{id}. Admin only, gated in the router.
func (h *PlansHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePlanRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	plan, err := h.catalog.UpdatePlan(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plan)
}

// Sync handles POST /api/admin/sync. Admin only, gated in the router.
func (h *PlansHandler) Sync(w http.ResponseWriter, r *http.Request) {
	log.Printf("[Catalog] sync triggered by %s", contextkeys.UserIDFrom(r.Context()))

	result, err := h.catalog.Sync(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// SyncStatus handles GET /api/admin/sync. Returns the last recorded sync
// outcome, or 404 before the first sync.
func (h *PlansHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalog.LastSync(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	if result == nil {
		Error(w, domain.ErrNotFound("no catalog sync recorded"))
		return
	}
	JSON(w, http.StatusOK, result)
}
