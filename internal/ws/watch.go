package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the HTTP level
	},
}

// statusMessage is one push on the watch socket.
type statusMessage struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	ICCID     string `json:"iccid,omitempty"`
}

// WatchHandler streams fulfillment status for a checkout session over a
// WebSocket, so the success page doesn't have to poll the read endpoint while
// provisioning is in flight.
type WatchHandler struct {
	esims    service.ActivationStore
	interval time.Duration
	timeout  time.Duration
}

// NewWatchHandler creates a new WatchHandler.
func NewWatchHandler(esims service.ActivationStore) *WatchHandler {
	return &WatchHandler{
		esims:    esims,
		interval: 2 * time.Second,
		timeout:  2 * time.Minute,
	}
}

// Handle upgrades HTTP to WebSocket and pushes the session's status until it
// reaches a terminal state or the watch window closes.
// URL: /api/order/{sessionId}/watch
func (h *WatchHandler) Handle(w http.ResponseWriter, r *http.Request, sessionID string) {
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastStatus string
	for {
		esim, err := h.esims.FindBySessionID(ctx, sessionID)
		if err != nil {
			log.Printf("watch lookup failed for session %s: %v", sessionID, err)
			return
		}

		status := "pending" // fulfillment hasn't produced a record yet
		iccid := ""
		if esim != nil {
			status = esim.Status
			iccid = esim.ICCID
		}

		if status != lastStatus {
			lastStatus = status
			msg := statusMessage{SessionID: sessionID, Status: status, ICCID: iccid}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}

		if terminal(status) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func terminal(status string) bool {
	switch status {
	case domain.EsimStatusActive, domain.EsimStatusRejected, domain.EsimStatusTimeout:
		return true
	}
	return false
}
