package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig aggregates runtime configuration. Everything is injected
// through environment variables with workable local defaults.
type AppConfig struct {
	ServiceName string
	Env         string

	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// Kafka cluster (comma separated), payment event topic, consumer group.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Category tree cache TTL.
	CategoryCacheTTL time.Duration

	// Sliding-window limit on the order/payment write paths.
	WriteRateLimit  int
	WriteRateWindow time.Duration

	// Bound on outbound provider calls and how long a payment may stay
	// pending before the query path writes it off.
	ProviderTimeout   time.Duration
	PaymentPendingTTL time.Duration

	// Shared token for the admin surface (catalog mutations, sandbox
	// settle). Real credential handling lives outside this service.
	AdminToken string

	// Base URL the redirect-shaped provider sends customers to.
	BkashBaseURL string
}

// Load reads and validates configuration, falling back to defaults.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName:       getEnv("SERVICE_NAME", "shopcore"),
		Env:               getEnv("ENV", "dev"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DBPath:            getEnv("DB_PATH", "shopcore.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           0,
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "shopcore-payment-events"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "shopcore-event-archiver"),
		CategoryCacheTTL:  time.Hour,
		WriteRateLimit:    100,
		WriteRateWindow:   time.Second,
		ProviderTimeout:   10 * time.Second,
		PaymentPendingTTL: 24 * time.Hour,
		AdminToken:        getEnv("ADMIN_TOKEN", "dev-admin-token"),
		BkashBaseURL:      getEnv("BKASH_BASE_URL", "http://localhost:8080"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	cacheTTLMin, err := getEnvInt("CATEGORY_CACHE_TTL_MIN", int(cfg.CategoryCacheTTL.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATEGORY_CACHE_TTL_MIN: %w", err)
	}
	if cacheTTLMin <= 0 {
		return AppConfig{}, fmt.Errorf("CATEGORY_CACHE_TTL_MIN must be > 0")
	}
	cfg.CategoryCacheTTL = time.Duration(cacheTTLMin) * time.Minute

	rateLimit, err := getEnvInt("WRITE_RATE_LIMIT", cfg.WriteRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_LIMIT must be > 0")
	}
	cfg.WriteRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("WRITE_RATE_WINDOW_SEC", int(cfg.WriteRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.WriteRateWindow = time.Duration(rateWindowSec) * time.Second

	providerTimeoutSec, err := getEnvInt("PROVIDER_TIMEOUT_SEC", int(cfg.ProviderTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid PROVIDER_TIMEOUT_SEC: %w", err)
	}
	if providerTimeoutSec <= 0 {
		return AppConfig{}, fmt.Errorf("PROVIDER_TIMEOUT_SEC must be > 0")
	}
	cfg.ProviderTimeout = time.Duration(providerTimeoutSec) * time.Second

	pendingTTLHour, err := getEnvInt("PAYMENT_PENDING_TTL_HOUR", int(cfg.PaymentPendingTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid PAYMENT_PENDING_TTL_HOUR: %w", err)
	}
	if pendingTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("PAYMENT_PENDING_TTL_HOUR must be > 0")
	}
	cfg.PaymentPendingTTL = time.Duration(pendingTTLHour) * time.Hour

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}

	return cfg, nil
}

// getEnv reads a string variable, returning the fallback when unset.
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt reads an integer variable, returning the fallback when unset.
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV parses a comma-separated string into a slice.
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
