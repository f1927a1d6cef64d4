package model

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the order lifecycle state. Paid and canceled are
// terminal; there is no transition out of either.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderCanceled OrderStatus = "canceled"
)

// Order is a customer's purchase request with a computed total.
// TotalCents is derived from the items at creation time and never
// supplied by the caller.
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID     int64       `gorm:"not null;index" json:"user_id"`
	TotalCents int64       `gorm:"not null" json:"total_cents"`
	Status     OrderStatus `gorm:"size:16;not null;default:pending;index" json:"status"`

	Items    []OrderItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	Payments []Payment   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Order) TableName() string { return "orders" }

// OrderItem snapshots one product line at order-creation time.
// PriceCents is the product price when the order was placed; later
// price changes do not affect it.
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID       uint  `gorm:"not null;index" json:"order_id"`
	ProductID     uint  `gorm:"not null;index" json:"product_id"`
	Quantity      int   `gorm:"not null" json:"quantity"`
	PriceCents    int64 `gorm:"not null" json:"price_cents"`
	SubtotalCents int64 `gorm:"not null" json:"subtotal_cents"`
}

func (OrderItem) TableName() string { return "order_items" }
