package order

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shopcore/internal/model"
	"shopcore/internal/stock"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:order_test_%d?mode=memory&cache=shared&_busy_timeout=5000", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.Order{}, &model.OrderItem{}, &model.Payment{}))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewService(db, stock.NewLedger(), nil), db
}

func seedProduct(t *testing.T, db *gorm.DB, priceCents int64, stockN int, status model.ProductStatus) *model.Product {
	t.Helper()
	p := &model.Product{
		Name:       fmt.Sprintf("product-%d", testDBSeq.Add(1)),
		SKU:        fmt.Sprintf("SKU-%d", testDBSeq.Add(1)),
		PriceCents: priceCents,
		Stock:      stockN,
		Status:     status,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestCreate_ComputesTotalFromSnapshotPrices(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// qty 3 @ $10.00 plus qty 1 @ $5.00 must total $35.00.
	p1 := seedProduct(t, db, 1000, 10, model.ProductActive)
	p2 := seedProduct(t, db, 500, 10, model.ProductActive)

	ord, err := svc.Create(ctx, 42, []ItemInput{
		{ProductID: p1.ID, Quantity: 3},
		{ProductID: p2.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, model.OrderPending, ord.Status)
	assert.Equal(t, int64(3500), ord.TotalCents)
	require.Len(t, ord.Items, 2)
	assert.Equal(t, int64(3000), ord.Items[0].SubtotalCents)
	assert.Equal(t, int64(500), ord.Items[1].SubtotalCents)

	// A later price change must not leak into the stored order.
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", p1.ID).Update("price_cents", 99999).Error)
	got, err := svc.Get(ctx, ord.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), got.TotalCents)
	assert.Equal(t, int64(1000), got.Items[0].PriceCents)
}

func TestCreate_EmptyItems(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), 1, nil)
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_ProductNotFound(t *testing.T) {
	svc, db := newTestService(t)
	_, err := svc.Create(context.Background(), 1, []ItemInput{{ProductID: 9999, Quantity: 1}})
	require.ErrorIs(t, err, ErrProductNotFound)

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreate_InsufficientStock_NoOrderPersisted(t *testing.T) {
	svc, db := newTestService(t)
	ok := seedProduct(t, db, 1000, 10, model.ProductActive)
	short := seedProduct(t, db, 1000, 2, model.ProductActive)

	_, err := svc.Create(context.Background(), 1, []ItemInput{
		{ProductID: ok.ID, Quantity: 1},
		{ProductID: short.ID, Quantity: 3},
	})
	require.ErrorIs(t, err, stock.ErrInsufficient)

	// Partial creation must never be observable.
	var orders, items int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&model.OrderItem{}).Count(&items).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestCreate_InactiveProductCountsAsOutOfStock(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 1000, 10, model.ProductInactive)

	_, err := svc.Create(context.Background(), 1, []ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.ErrorIs(t, err, stock.ErrInsufficient)
}

func TestGet_OwnerFilter(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 1000, 10, model.ProductActive)
	ord, err := svc.Create(context.Background(), 42, []ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), ord.ID, 7)
	require.ErrorIs(t, err, ErrNotFound)

	// Zero owner disables the filter.
	got, err := svc.Get(context.Background(), ord.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
}

func TestListByUser_PaginatesNewestFirst(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 1000, 100, model.ProductActive)

	var ids []uint
	for i := 0; i < 5; i++ {
		ord, err := svc.Create(context.Background(), 42, []ItemInput{{ProductID: p.ID, Quantity: 1}})
		require.NoError(t, err)
		ids = append(ids, ord.ID)
		// created_at has second-level ties on fast machines; spread them.
		require.NoError(t, db.Model(&model.Order{}).Where("id = ?", ord.ID).
			Update("created_at", time.Now().Add(time.Duration(i)*time.Second)).Error)
	}
	_, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	page1, total, err := svc.ListByUser(context.Background(), 42, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID)
	assert.Equal(t, ids[3], page1[1].ID)

	page3, _, err := svc.ListByUser(context.Background(), 42, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].ID)
}

func TestCancel_OnlyFromPending(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 1000, 10, model.ProductActive)
	ord, err := svc.Create(context.Background(), 42, []ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	got, err := svc.Cancel(context.Background(), ord.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCanceled, got.Status)

	_, err = svc.Cancel(context.Background(), ord.ID, 42)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_PaidOrderRejected(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 1000, 10, model.ProductActive)
	ord, err := svc.Create(context.Background(), 42, []ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, svc.MarkPaid(context.Background(), ord.ID))

	_, err = svc.Cancel(context.Background(), ord.ID, 42)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkPaid_DecrementsEveryItem(t *testing.T) {
	svc, db := newTestService(t)
	p1 := seedProduct(t, db, 1000, 10, model.ProductActive)
	p2 := seedProduct(t, db, 500, 4, model.ProductActive)
	ord, err := svc.Create(context.Background(), 42, []ItemInput{
		{ProductID: p1.ID, Quantity: 3},
		{ProductID: p2.ID, Quantity: 1},
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPaid(context.Background(), ord.ID))

	var g1, g2 model.Product
	require.NoError(t, db.First(&g1, p1.ID).Error)
	require.NoError(t, db.First(&g2, p2.ID).Error)
	assert.Equal(t, 7, g1.Stock)
	assert.Equal(t, 3, g2.Stock)

	got, err := svc.Get(context.Background(), ord.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, got.Status)
}

func TestMarkPaid_SecondCallRejected(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 1000, 10, model.ProductActive)
	ord, err := svc.Create(context.Background(), 42, []ItemInput{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPaid(context.Background(), ord.ID))
	err = svc.MarkPaid(context.Background(), ord.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// The second attempt must not decrement again.
	var got model.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, 8, got.Stock)
}

func TestMarkPaid_MissingOrder(t *testing.T) {
	svc, _ := newTestService(t)
	require.ErrorIs(t, svc.MarkPaid(context.Background(), 9999), ErrNotFound)
}

// If stock ran out between order creation and capture, mark-paid must
// fail and roll back the status change entirely.
func TestMarkPaid_InsufficientStockRollsBack(t *testing.T) {
	svc, db := newTestService(t)
	p1 := seedProduct(t, db, 1000, 10, model.ProductActive)
	p2 := seedProduct(t, db, 500, 2, model.ProductActive)
	ord, err := svc.Create(context.Background(), 42, []ItemInput{
		{ProductID: p1.ID, Quantity: 1},
		{ProductID: p2.ID, Quantity: 2},
	})
	require.NoError(t, err)

	// Another order drains p2 before capture.
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", p2.ID).Update("stock", 1).Error)

	err = svc.MarkPaid(context.Background(), ord.ID)
	require.ErrorIs(t, err, stock.ErrInsufficient)

	// Status change and the p1 decrement both rolled back.
	got, err := svc.Get(context.Background(), ord.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, got.Status)

	var g1, g2 model.Product
	require.NoError(t, db.First(&g1, p1.ID).Error)
	require.NoError(t, db.First(&g2, p2.ID).Error)
	assert.Equal(t, 10, g1.Stock)
	assert.Equal(t, 1, g2.Stock)
}
