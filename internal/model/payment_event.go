package model

import "time"

// PaymentEvent is the audit record written by the worker for every
// event consumed from the payment event stream. EventID is unique so
// redelivered messages land exactly once.
type PaymentEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID       string `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	Type          string `gorm:"size:32;not null;index" json:"type"`
	OrderID       uint   `gorm:"not null;index" json:"order_id"`
	PaymentID     uint   `gorm:"not null;index" json:"payment_id"`
	Provider      string `gorm:"size:32;not null" json:"provider"`
	TransactionID string `gorm:"size:255;not null;index" json:"transaction_id"`
	AmountCents   int64  `gorm:"not null" json:"amount_cents"`
}

func (PaymentEvent) TableName() string { return "payment_events" }
