package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus is the lifecycle state of a Purchase.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePending, PurchaseCompleted, PurchaseFailed:
		return true
	}
	return false
}

// Terminal reports whether the purchase can no longer change state.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted || s == PurchaseFailed
}

func (s PurchaseStatus) CanTransition(to PurchaseStatus) bool {
	return s == PurchasePending && (to == PurchaseCompleted || to == PurchaseFailed)
}

// Purchase records a buyer paying for a dataset. Amount is the price at
// intent creation and is not linked to later price changes.
type Purchase struct {
	ID                 string          `json:"id"`
	BuyerID            string          `json:"buyerId"`
	DatasetID          string          `json:"datasetId"`
	Amount             decimal.Decimal `json:"amount"`
	Status             PurchaseStatus  `json:"status"`
	ExternalPaymentRef string          `json:"externalPaymentRef"`
	PurchasedAt        time.Time       `json:"purchasedAt"`
	CompletedAt        *time.Time      `json:"completedAt,omitempty"`
}

// Effective reports whether the purchase grants download access.
func (p Purchase) Effective() bool {
	return p.Status == PurchaseCompleted
}

type PurchaseWithDataset struct {
	Purchase
	Dataset *Dataset `json:"dataset"`
}

// PaymentIntent is handed back to the client-side payment form.
type PaymentIntent struct {
	PurchaseID      string          `json:"purchaseId"`
	PaymentIntentID string          `json:"paymentIntentId"`
	ClientSecret    string          `json:"clientSecret"`
	Amount          decimal.Decimal `json:"amount"`
}
