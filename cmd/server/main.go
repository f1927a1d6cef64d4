package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shopcore/internal/catalog"
	"shopcore/internal/config"
	"shopcore/internal/model"
	"shopcore/internal/order"
	"shopcore/internal/payment"
	"shopcore/internal/queue"
	"shopcore/internal/router"
	"shopcore/internal/stock"
	"shopcore/pkg/cache"
	"shopcore/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = logger.Sync() }()

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		logger.Fatal("db_open_failed", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&model.Product{},
		&model.Category{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
	); err != nil {
		logger.Fatal("db_migrate_failed", zap.Error(err))
	}

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()

	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() { _ = producer.Close() }()

	stripeGW := payment.NewStripeGateway()
	bkashGW := payment.NewBkashGateway(cfg.BkashBaseURL)
	registry := payment.NewRegistry(stripeGW, bkashGW)

	ledger := stock.NewLedger()
	orderSvc := order.NewService(db, ledger, logger)
	paymentSvc := payment.NewService(db, orderSvc, registry, producer, logger, payment.Config{
		ProviderTimeout: cfg.ProviderTimeout,
		PendingTTL:      cfg.PaymentPendingTTL,
	})
	catalogSvc := catalog.NewService(db, cache.New(rdb, cfg.CategoryCacheTTL), logger)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	router.Setup(r, router.Deps{
		Orders:   orderSvc,
		Payments: paymentSvc,
		Catalog:  catalogSvc,
		Stripe:   stripeGW,
		RDB:      rdb,
		Cfg:      cfg,
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http_server_start", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_failed", zap.Error(err))
	}
}
