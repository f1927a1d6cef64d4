package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shopcore/internal/catalog"
	"shopcore/internal/config"
	"shopcore/internal/model"
	"shopcore/internal/order"
	"shopcore/internal/payment"
	"shopcore/internal/stock"
)

var testDBSeq atomic.Int64

const testAdminToken = "test-admin-token"

type testApp struct {
	r      *gin.Engine
	db     *gorm.DB
	stripe *payment.StripeGateway
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared&_busy_timeout=5000", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.Category{}, &model.Order{}, &model.OrderItem{}, &model.Payment{}))

	orders := order.NewService(db, stock.NewLedger(), nil)
	stripe := payment.NewStripeGateway()
	registry := payment.NewRegistry(stripe, payment.NewBkashGateway("http://localhost:8080"))
	payments := payment.NewService(db, orders, registry, nil, nil, payment.Config{})
	catalogSvc := catalog.NewService(db, nil, nil)

	// Unreachable Redis: the limiter fails open, so handlers run without
	// a live instance.
	rdb := rd.NewClient(&rd.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})

	r := gin.New()
	Setup(r, Deps{
		Orders:   orders,
		Payments: payments,
		Catalog:  catalogSvc,
		Stripe:   stripe,
		RDB:      rdb,
		Cfg: config.AppConfig{
			AdminToken:      testAdminToken,
			WriteRateLimit:  100,
			WriteRateWindow: time.Second,
		},
	})
	return &testApp{r: r, db: db, stripe: stripe}
}

func (a *testApp) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func asUser(id int) map[string]string {
	return map[string]string{"X-User-ID": fmt.Sprintf("%d", id)}
}

func asAdmin() map[string]string {
	return map[string]string{"X-Admin-Token": testAdminToken}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (a *testApp) seedProduct(t *testing.T, stockN int) uint {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/products", gin.H{
		"name":        "widget",
		"sku":         fmt.Sprintf("SKU-%d", testDBSeq.Add(1)),
		"price_cents": 1000,
		"stock":       stockN,
	}, asAdmin())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	return uint(data["id"].(float64))
}

func TestPing(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"msg":"pong"}`, w.Body.String())
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, http.MethodPost, "/api/products", gin.H{"name": "x", "sku": "S", "price_cents": 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/products", gin.H{"name": "x", "sku": "S", "price_cents": 1},
		map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserEndpointsRequirePrincipal(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, http.MethodPost, "/api/orders", gin.H{"items": []gin.H{{"product_id": 1, "quantity": 1}}}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/orders", gin.H{"items": []gin.H{{"product_id": 1, "quantity": 1}}},
		map[string]string{"X-User-ID": "not-a-number"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_Flow(t *testing.T) {
	a := newTestApp(t)
	pid := a.seedProduct(t, 10)

	w := a.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"product_id": pid, "quantity": 3}},
	}, asUser(42))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(3000), data["total_cents"])
	assert.Equal(t, "pending", data["status"])

	orderID := uint(data["id"].(float64))

	// The owner sees it, another principal gets 404.
	w = a.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID), nil, asUser(42))
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID), nil, asUser(7))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	a := newTestApp(t)
	pid := a.seedProduct(t, 2)

	w := a.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"product_id": pid, "quantity": 5}},
	}, asUser(42))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	a := newTestApp(t)
	pid := a.seedProduct(t, 10)

	w := a.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"product_id": pid, "quantity": 2}},
	}, asUser(42))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := uint(decode(t, w)["data"].(map[string]any)["id"].(float64))

	w = a.do(t, http.MethodPost, "/api/payments/create", gin.H{
		"order_id": orderID,
		"provider": "stripe",
	}, asUser(42))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payData := decode(t, w)["data"].(map[string]any)
	paymentID := uint(payData["payment_id"].(float64))
	txID := payData["transaction_id"].(string)
	assert.Contains(t, payData["extra"], "client_secret")

	// The sandbox settle endpoint is admin-gated.
	w = a.do(t, http.MethodPost, "/api/payments/sandbox/settle", gin.H{
		"transaction_id": txID, "status": "succeeded",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = a.do(t, http.MethodPost, "/api/payments/sandbox/settle", gin.H{
		"transaction_id": txID, "status": "succeeded",
	}, asAdmin())
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, "/api/payments/confirm", gin.H{
		"payment_id": paymentID, "transaction_id": txID,
	}, asUser(42))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	confirmed := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "success", confirmed["status"])

	// Stock was captured and the order moved to paid.
	w = a.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d", pid), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(8), decode(t, w)["data"].(map[string]any)["stock"])

	w = a.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID), nil, asUser(42))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", decode(t, w)["data"].(map[string]any)["status"])

	// Latest attempt is addressable by order.
	w = a.do(t, http.MethodGet, fmt.Sprintf("/api/payments/order/%d", orderID), nil, asUser(42))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, txID, decode(t, w)["data"].(map[string]any)["transaction_id"])
}

func TestWebhookSurface(t *testing.T) {
	a := newTestApp(t)
	pid := a.seedProduct(t, 10)

	w := a.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"product_id": pid, "quantity": 1}},
	}, asUser(42))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := uint(decode(t, w)["data"].(map[string]any)["id"].(float64))

	w = a.do(t, http.MethodPost, "/api/payments/create", gin.H{
		"order_id": orderID, "provider": "stripe",
	}, asUser(42))
	require.Equal(t, http.StatusCreated, w.Code)
	txID := decode(t, w)["data"].(map[string]any)["transaction_id"].(string)

	// A success notification settles and reports received.
	w = a.do(t, http.MethodPost, "/api/payments/webhooks/stripe", gin.H{
		"type": "payment_intent.succeeded",
		"data": gin.H{"object": gin.H{"id": txID}},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "received", body["status"])
	assert.Equal(t, "success", body["result"].(map[string]any)["status"])

	// Unknown transactions are acknowledged, not errored.
	w = a.do(t, http.MethodPost, "/api/payments/webhooks/stripe", gin.H{
		"type": "payment_intent.succeeded",
		"data": gin.H{"object": gin.H{"id": "pi_unknown"}},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "received", body["status"])
	assert.Equal(t, "ignored", body["result"].(map[string]any)["status"])

	// Malformed payloads do surface an error.
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/stripe", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	a.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProviders(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, http.MethodGet, "/api/payments/providers", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["count"])
	assert.ElementsMatch(t, []any{"bkash", "stripe"}, data["providers"].([]any))
}

func TestCategoryTreeEndpoint(t *testing.T) {
	a := newTestApp(t)

	w := a.do(t, http.MethodPost, "/api/categories", gin.H{"name": "clothing"}, asAdmin())
	require.Equal(t, http.StatusCreated, w.Code)
	rootID := uint(decode(t, w)["data"].(map[string]any)["id"].(float64))

	w = a.do(t, http.MethodPost, "/api/categories", gin.H{"name": "shoes", "parent_id": rootID}, asAdmin())
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodGet, "/api/categories/tree", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode(t, w)["data"].([]any)
	require.Len(t, tree, 1)
	root := tree[0].(map[string]any)
	assert.Equal(t, "clothing", root["name"])
	require.Len(t, root["children"].([]any), 1)
}

func TestInvalidPathParams(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, http.MethodGet, "/api/orders/zero", nil, asUser(42))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(t, http.MethodGet, "/api/products/0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
