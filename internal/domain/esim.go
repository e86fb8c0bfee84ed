package domain

import "time"

// Esim is the activation record produced by a fulfilled order. It is keyed by
// the originating checkout session id (unique), which is what makes repeated
// webhook deliveries for the same session a no-op.
type Esim struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	PlanID            string    `json:"planId"`
	CheckoutSessionID string    `json:"checkoutSessionId"`
	ProviderOrderNo   string    `json:"providerOrderNo,omitempty"`
	ICCID             string    `json:"iccid,omitempty"`
	ActivationCode    string    `json:"activationCode,omitempty"`
	SmdpAddress       string    `json:"smdpAddress,omitempty"`
	QRCode            string    `json:"qrCode,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Esim statuses. Rejected and timeout rows keep the session id and empty
// provisioning fields so failed attempts after a successful charge stay
// visible for manual reconciliation.
const (
	EsimStatusActive   = "active"
	EsimStatusRejected = "rejected"
	EsimStatusTimeout  = "timeout"
)

// Topup is one entry in an eSIM's append-only topup history.
type Topup struct {
	ID                string    `json:"id"`
	EsimID            string    `json:"esimId"`
	PackageCode       string    `json:"packageCode"`
	ProviderTopupID   string    `json:"providerTopupId,omitempty"`
	CheckoutSessionID string    `json:"checkoutSessionId"`
	AmountCents       int64     `json:"amountCents"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CreateOrderRequest is the validated input for starting a plan purchase.
type CreateOrderRequest struct {
	PlanID string `json:"planId" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

// CreateTopupRequest is the validated input for starting a topup purchase.
type CreateTopupRequest struct {
	ICCID          string `json:"iccid" validate:"required"`
	TopupPackageID string `json:"topUpPackageId" validate:"required"`
}

// CheckoutResponse carries the payment-provider session handle back to the
// storefront, which redirects the customer to URL.
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// OrderStatusResponse is the activation projection served by
// GET /api/order/{sessionId}.
type OrderStatusResponse struct {
	ICCID          string `json:"iccid,omitempty"`
	ActivationCode string `json:"activationCode,omitempty"`
	SmdpAddress    string `json:"smdpAddress,omitempty"`
	QRCode         string `json:"qrCode,omitempty"`
	PlanName       string `json:"planName,omitempty"`
	Status         string `json:"status"`
}
