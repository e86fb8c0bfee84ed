// Package payment abstracts the hosted-checkout payment provider. The rest of
// the application only sees sessions, metadata and completion events.
package payment

import (
	"context"
	"strconv"
)

// SessionParams describes one checkout session to create. Metadata is the
// sole channel carrying purchase intent to the completion webhook; the
// provider has no other correlation key.
type SessionParams struct {
	ProductName   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is the provider-issued handle for a created checkout session.
// Immutable; the customer is redirected to URL.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Gateway defines the interface for payment providers.
type Gateway interface {
	// CreateCheckoutSession creates a hosted checkout session.
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
	// VerifyWebhookSignature verifies a webhook delivery against its
	// signature header (implementation specific).
	VerifyWebhookSignature(payload []byte, sigHeader string) bool
}

// Metadata keys and values used to route completion events.
const (
	MetaType           = "type"
	MetaPlanID         = "planId"
	MetaUserID         = "userId"
	MetaEsimID         = "esimId"
	MetaTopupPackageID = "topUpPackageId"

	TypeOrder = "order"
	TypeTopup = "topup"
)

// MockGateway is a dummy implementation for tests and local development.
type MockGateway struct {
	// Sessions records every created session's params, keyed by session id.
	Sessions map[string]SessionParams
	nextID   int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{Sessions: map[string]SessionParams{}}
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	g.nextID++
	id := "cs_mock_" + strconv.Itoa(g.nextID)
	g.Sessions[id] = params
	return &Session{ID: id, URL: "https://example.com/pay?session_id=" + id}, nil
}

func (g *MockGateway) VerifyWebhookSignature(payload []byte, sigHeader string) bool {
	return true
}
