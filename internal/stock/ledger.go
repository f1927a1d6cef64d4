// Package stock is the single authority over product inventory. No
// other component mutates Product.Stock.
package stock

import (
	"errors"

	"gorm.io/gorm"

	"shopcore/internal/model"
)

var (
	// ErrInsufficient is returned when the availability check fails at
	// decrement time.
	ErrInsufficient = errors.New("stock: insufficient stock")
	// ErrProductNotFound is returned when the product row does not exist.
	ErrProductNotFound = errors.New("stock: product not found")
)

// Ledger exposes the atomic check-and-decrement primitive. The check
// and the decrement are one conditional UPDATE, so concurrent callers
// racing for the last unit are resolved by whichever statement commits
// first; the loser sees ErrInsufficient.
type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// ReserveAndDecrement subtracts quantity from the product's stock if
// enough is available. It runs against the caller's transaction handle
// so the decrement commits or rolls back with the surrounding work.
func (l *Ledger) ReserveAndDecrement(tx *gorm.DB, productID uint, quantity int) error {
	if quantity <= 0 {
		return errors.New("stock: quantity must be > 0")
	}

	res := tx.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing product from a short one.
		var count int64
		if err := tx.Model(&model.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrProductNotFound
		}
		return ErrInsufficient
	}
	return nil
}
