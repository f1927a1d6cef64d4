package model

import (
	"time"

	"gorm.io/gorm"
)

// ProductStatus marks whether a product can still be ordered.
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// Product is a catalog item with its live inventory count.
// Stock is only ever mutated by the stock ledger; everything else
// treats it as read-only.
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string        `gorm:"size:255;not null;index" json:"name"`
	SKU         string        `gorm:"size:100;uniqueIndex;not null" json:"sku"`
	Description string        `gorm:"size:1024" json:"description,omitempty"`
	PriceCents  int64         `gorm:"not null" json:"price_cents"` // unit price in cents
	Stock       int           `gorm:"not null;default:0" json:"stock"`
	Status      ProductStatus `gorm:"size:16;not null;default:active" json:"status"`
	CategoryID  *uint         `gorm:"index" json:"category_id,omitempty"`
}

func (Product) TableName() string { return "products" }

// IsInStock reports whether the product is orderable for the given quantity.
// This is the advisory check at order-creation time; the binding check
// happens in the stock ledger at capture time.
func (p *Product) IsInStock(quantity int) bool {
	return p.Status == ProductActive && p.Stock >= quantity
}
