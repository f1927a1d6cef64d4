// Package router wires the HTTP surface. Handlers only translate
// between HTTP and the services; every business rule lives below.
package router

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	"shopcore/internal/catalog"
	"shopcore/internal/config"
	"shopcore/internal/middleware"
	"shopcore/internal/order"
	"shopcore/internal/payment"
	"shopcore/internal/stock"
)

// Deps carries everything the routes need. Built once in main and
// passed down; no package-level state.
type Deps struct {
	Orders   *order.Service
	Payments *payment.Service
	Catalog  *catalog.Service
	Stripe   *payment.StripeGateway
	RDB      *rd.Client
	Cfg      config.AppConfig
}

// Setup registers all HTTP routes.
func Setup(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	limited := func(route string) gin.HandlerFunc {
		return middleware.RedisRateLimit(d.RDB, route, d.Cfg.WriteRateLimit, d.Cfg.WriteRateWindow)
	}

	// Catalog
	r.GET("/api/products", listProducts(d.Catalog))
	r.GET("/api/products/:product_id", getProduct(d.Catalog))
	r.POST("/api/products", middleware.RequireAdmin(d.Cfg.AdminToken), createProduct(d.Catalog))
	r.GET("/api/categories/tree", categoryTree(d.Catalog))
	r.POST("/api/categories", middleware.RequireAdmin(d.Cfg.AdminToken), createCategory(d.Catalog))

	// Orders
	r.POST("/api/orders", middleware.RequireUser(), limited("orders"), createOrder(d.Orders))
	r.GET("/api/orders", middleware.RequireUser(), listOrders(d.Orders))
	r.GET("/api/orders/:order_id", middleware.RequireUser(), getOrder(d.Orders))
	r.POST("/api/orders/:order_id/cancel", middleware.RequireUser(), cancelOrder(d.Orders))

	// Payments
	r.POST("/api/payments/create", middleware.RequireUser(), limited("payments"), createPayment(d.Payments))
	r.POST("/api/payments/confirm", middleware.RequireUser(), confirmPayment(d.Payments))
	r.GET("/api/payments/providers", listProviders(d.Payments))
	r.GET("/api/payments/order/:order_id", middleware.RequireUser(), getPaymentByOrder(d.Payments))
	r.GET("/api/payments/:payment_id", middleware.RequireUser(), getPayment(d.Payments))

	// Provider webhooks: one endpoint per provider, each accepting that
	// provider's native payload shape.
	r.POST("/api/payments/webhooks/stripe", handleWebhook(d.Payments, "stripe"))
	r.POST("/api/payments/webhooks/bkash", handleWebhook(d.Payments, "bkash"))

	// Dev-only: flips a sandbox stripe intent so the confirm flow can be
	// exercised without real provider traffic.
	r.POST("/api/payments/sandbox/settle", middleware.RequireAdmin(d.Cfg.AdminToken), sandboxSettle(d.Stripe))
}

// fail maps service errors onto the HTTP taxonomy.
func fail(c *gin.Context, err error) {
	var provErr *payment.ProviderError

	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrProductNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, stock.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": err.Error()})
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, stock.ErrInsufficient),
		errors.Is(err, payment.ErrUnknownProvider),
		errors.Is(err, payment.ErrTransactionMismatch),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, catalog.ErrParentNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
	case errors.As(err, &provErr):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": provErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
	}
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

func listProducts(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("active") == "true"
		list, err := svc.ListProducts(c.Request.Context(), activeOnly)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func getProduct(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "product_id")
		if !ok {
			return
		}
		p, err := svc.GetProduct(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func createProduct(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.ProductInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		p, err := svc.CreateProduct(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": p})
	}
}

func categoryTree(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tree, err := svc.CategoryTree(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": tree})
	}
}

func createCategory(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.CategoryInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		cat, err := svc.CreateCategory(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": cat})
	}
}

func createOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Items []order.ItemInput `json:"items" binding:"required,min=1,dive"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		ord, err := svc.Create(c.Request.Context(), middleware.UserID(c), req.Items)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": ord})
	}
}

func listOrders(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "page must be >= 1"})
			return
		}
		pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
		if err != nil || pageSize < 1 || pageSize > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "page_size must be between 1 and 100"})
			return
		}
		orders, total, err := svc.ListByUser(c.Request.Context(), middleware.UserID(c), page, pageSize)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"orders":    orders,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		}})
	}
}

func getOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "order_id")
		if !ok {
			return
		}
		ord, err := svc.Get(c.Request.Context(), id, middleware.UserID(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": ord})
	}
}

func cancelOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "order_id")
		if !ok {
			return
		}
		ord, err := svc.Cancel(c.Request.Context(), id, middleware.UserID(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": ord})
	}
}

func createPayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID  uint   `json:"order_id" binding:"required,min=1"`
			Provider string `json:"provider" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		userID := middleware.UserID(c)
		res, err := svc.CreatePayment(c.Request.Context(), req.OrderID, req.Provider, userID, map[string]string{
			"user_id": strconv.FormatInt(userID, 10),
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": res})
	}
}

func confirmPayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PaymentID     uint   `json:"payment_id" binding:"required,min=1"`
			TransactionID string `json:"transaction_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		pay, err := svc.ConfirmPayment(c.Request.Context(), req.PaymentID, req.TransactionID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": pay})
	}
}

func getPayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "payment_id")
		if !ok {
			return
		}
		pay, err := svc.QueryPayment(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": pay})
	}
}

func getPaymentByOrder(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "order_id")
		if !ok {
			return
		}
		pay, err := svc.GetByOrder(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": pay})
	}
}

func listProviders(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		providers := svc.Providers()
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"providers": providers,
			"count":     len(providers),
		}})
	}
}

// handleWebhook accepts a provider notification. The response is
// always {"status":"received"} for handled and ignored notifications
// alike, so providers do not retry on unknown transactions; only
// malformed payloads and unknown providers surface an error.
func handleWebhook(svc *payment.Service, provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		outcome, err := svc.HandleWebhook(c.Request.Context(), provider, payload)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "received", "result": outcome})
	}
}

func sandboxSettle(gw *payment.StripeGateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TransactionID string `json:"transaction_id" binding:"required"`
			Status        string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if err := gw.Settle(req.TransactionID, req.Status); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "intent updated"})
	}
}
