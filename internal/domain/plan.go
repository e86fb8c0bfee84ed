package domain

import "time"

// Plan is a purchasable eSIM data plan mirrored from the provisioning
// provider's catalog. PackageCode uniquely identifies the provisioning unit
// at the provider.
type Plan struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"` // standard, unlimited, global
	Region         string    `json:"region,omitempty"`
	Country        string    `json:"country,omitempty"`
	DataAmountGB   float64   `json:"dataAmountGb,omitempty"`
	ValidityDays   int       `json:"validityDays,omitempty"`
	PriceCents     int64     `json:"priceCents"` // 0 until priced manually after sync
	Currency       string    `json:"currency"`
	PackageCode    string    `json:"packageCode"`
	TopupAvailable bool      `json:"topupAvailable"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Plan types derived from the provider catalog during sync.
const (
	PlanTypeStandard  = "standard"
	PlanTypeUnlimited = "unlimited"
	PlanTypeGlobal    = "global"
)

// UpdatePlanRequest is the validated admin input for pricing/describing a
// synced plan. Sync never touches these fields.
type UpdatePlanRequest struct {
	PriceCents *int64  `json:"priceCents" validate:"omitempty,min=0"`
	Currency   *string `json:"currency" validate:"omitempty,len=3"`
	Name       *string `json:"name" validate:"omitempty,min=1"`
}

// SyncResult summarizes a provider catalog synchronization run.
type SyncResult struct {
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Total    int       `json:"total"`
	SyncedAt time.Time `json:"syncedAt"`
}
