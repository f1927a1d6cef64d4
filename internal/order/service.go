// Package order owns the Order/OrderItem lifecycle: creation with
// snapshot pricing, pagination, cancellation and the paid transition
// that captures stock.
package order

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"shopcore/internal/model"
	"shopcore/internal/stock"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrEmptyItems        = errors.New("order: item list must not be empty")
	ErrProductNotFound   = errors.New("order: product not found")
)

// ItemInput is one requested line of an order.
type ItemInput struct {
	ProductID uint `json:"product_id" binding:"required,min=1"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

type Service struct {
	db     *gorm.DB
	ledger *stock.Ledger
	log    *zap.Logger
}

func NewService(db *gorm.DB, ledger *stock.Ledger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, ledger: ledger, log: log.With(zap.String("component", "order_service"))}
}

// Create validates every line against the live catalog, snapshots the
// current prices and persists the order plus all items as one
// transaction. The stock check here is advisory only; nothing is
// reserved until the order is paid.
func (s *Service) Create(ctx context.Context, userID int64, items []ItemInput) (*model.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range items {
		if it.ProductID == 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product_id and quantity must be > 0", ErrEmptyItems)
		}
	}

	ord := &model.Order{
		UserID: userID,
		Status: model.OrderPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		for _, it := range items {
			var prod model.Product
			if err := tx.First(&prod, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: id=%d", ErrProductNotFound, it.ProductID)
				}
				return err
			}
			if !prod.IsInStock(it.Quantity) {
				return fmt.Errorf("%w: product %q", stock.ErrInsufficient, prod.Name)
			}
			sub := prod.PriceCents * int64(it.Quantity)
			ord.Items = append(ord.Items, model.OrderItem{
				ProductID:     prod.ID,
				Quantity:      it.Quantity,
				PriceCents:    prod.PriceCents,
				SubtotalCents: sub,
			})
			total += sub
		}
		ord.TotalCents = total
		// Creates the order row and every item in the same statement batch;
		// a failure on any item rolls the whole aggregate back.
		return tx.Create(ord).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order_created",
		zap.Uint("order_id", ord.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total_cents", ord.TotalCents),
		zap.Int("items", len(ord.Items)))
	return ord, nil
}

// Get loads an order with its items. A non-zero userID acts as an
// ownership filter: a mismatch reports not-found rather than leaking
// the order's existence.
func (s *Service) Get(ctx context.Context, orderID uint, userID int64) (*model.Order, error) {
	q := s.db.WithContext(ctx).Preload("Items").Where("id = ?", orderID)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var ord model.Order
	if err := q.First(&ord).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ord, nil
}

// ListByUser returns one page of the user's orders, newest first,
// plus the total count across all pages.
func (s *Service) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]model.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	base := s.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []model.Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Cancel moves a pending order to canceled. The status guard is part
// of the UPDATE itself, so a concurrent paid transition cannot be
// overwritten.
func (s *Service) Cancel(ctx context.Context, orderID uint, userID int64) (*model.Order, error) {
	ord, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", ord.ID, model.OrderPending).
		Update("status", model.OrderCanceled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: cannot cancel order in status %q", ErrInvalidTransition, ord.Status)
	}

	ord.Status = model.OrderCanceled
	s.log.Info("order_canceled", zap.Uint("order_id", ord.ID), zap.Int64("user_id", userID))
	return ord, nil
}

// MarkPaid runs MarkPaidTx in its own transaction.
func (s *Service) MarkPaid(ctx context.Context, orderID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.MarkPaidTx(tx, orderID)
	})
}

// MarkPaidTx transitions a pending order to paid and decrements stock
// for every item, all against the caller's transaction. If any
// decrement fails the caller's rollback undoes the status change too,
// so a partially captured order is never observable.
func (s *Service) MarkPaidTx(tx *gorm.DB, orderID uint) error {
	res := tx.Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderPending).
		Update("status", model.OrderPaid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var ord model.Order
		if err := tx.First(&ord, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return fmt.Errorf("%w: order is %q, not pending", ErrInvalidTransition, ord.Status)
	}

	var items []model.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return err
	}
	for _, it := range items {
		if err := s.ledger.ReserveAndDecrement(tx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("capture stock for product %d: %w", it.ProductID, err)
		}
	}

	s.log.Info("order_paid", zap.Uint("order_id", orderID), zap.Int("items", len(items)))
	return nil
}
