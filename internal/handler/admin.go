package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/service"
)

// AdminHandler serves the back-office surface: storefront stats and the
// activation-record list used for manual reconciliation of failed
// fulfillments.
type AdminHandler struct {
	db    *pgxpool.Pool
	esims service.ActivationStore
}

func NewAdminHandler(db *pgxpool.Pool, esims service.ActivationStore) *AdminHandler {
	return &AdminHandler{db: db, esims: esims}
}

// GetStats returns storefront-wide metrics.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	// Simple count queries
	var usersCount, plansCount, esimsCount, topupsCount int
	var failedCount int

	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM users").Scan(&usersCount); err != nil {
		log.Printf("Failed to count users: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM plans").Scan(&plansCount); err != nil {
		log.Printf("Failed to count plans: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM esims").Scan(&esimsCount); err != nil {
		log.Printf("Failed to count esims: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM topups").Scan(&topupsCount); err != nil {
		log.Printf("Failed to count topups: %v", err)
	}
	// Failed fulfillments after a successful charge form the manual follow-up queue.
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM esims WHERE status IN ('rejected', 'timeout')").Scan(&failedCount); err != nil {
		log.Printf("Failed to count failed fulfillments: %v", err)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"users":              usersCount,
		"plans":              plansCount,
		"esims":              esimsCount,
		"topups":             topupsCount,
		"failedFulfillments": failedCount,
	})
}

// ListEsims returns all activation records, newest first.
func (h *AdminHandler) ListEsims(w http.ResponseWriter, r *http.Request) {
	esims, err := h.esims.ListAll(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, esims)
}

// ListEsimTopups returns one eSIM's topup history.
func (h *AdminHandler) ListEsimTopups(w http.ResponseWriter, r *http.Request) {
	topups, err := h.esims.ListTopups(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	if topups == nil {
		topups = []*domain.Topup{}
	}
	JSON(w, http.StatusOK, topups)
}
