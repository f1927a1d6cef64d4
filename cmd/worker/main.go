// The worker consumes the payment event stream and archives every
// event into the payment_events audit table.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shopcore/internal/config"
	"shopcore/internal/model"
	"shopcore/internal/queue"
	"shopcore/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.MustNewLogger(cfg.ServiceName+"-worker", cfg.Env)
	defer func() { _ = logger.Sync() }()

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		logger.Fatal("db_open_failed", zap.Error(err))
	}
	if err := db.AutoMigrate(&model.PaymentEvent{}); err != nil {
		logger.Fatal("db_migrate_failed", zap.Error(err))
	}

	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db, logger)
	defer func() { _ = consumer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker_start",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.KafkaGroupID))
	consumer.Run(ctx)
	logger.Info("worker_stopped")
}
