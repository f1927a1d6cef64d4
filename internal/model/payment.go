package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentStatus is the per-attempt settlement state. Pending is the
// only non-terminal state; a new Payment row may be created for the
// same order after a failed attempt.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment is one attempt to settle an order through a provider.
// TransactionID is assigned by the provider and is the join key for
// webhook reconciliation, so it must be globally unique.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderID       uint          `gorm:"not null;index" json:"order_id"`
	Provider      string        `gorm:"size:32;not null;index" json:"provider"`
	TransactionID string        `gorm:"size:255;uniqueIndex;not null" json:"transaction_id"`
	Status        PaymentStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	// RawResponse keeps the provider's last payload verbatim for audit.
	RawResponse json.RawMessage `gorm:"type:blob" json:"raw_response,omitempty"`
}

func (Payment) TableName() string { return "payments" }
