package queue

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shopcore/internal/model"
	"shopcore/internal/payment"
)

// Consumer reads payment events and writes one audit row each.
// Redelivered messages hit the event_id unique index and are treated
// as already processed.
type Consumer struct {
	r   *kafka.Reader
	db  *gorm.DB
	log *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db:  db,
		log: log.With(zap.String("component", "event_consumer")),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run consumes until the context is canceled or the reader closes.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx canceled or connection gone
		}

		var evt payment.Event
		if err := json.Unmarshal(m.Value, &evt); err != nil {
			c.log.Warn("event_unmarshal_failed", zap.Error(err))
			continue
		}
		if err := validate(evt); err != nil {
			c.log.Warn("event_invalid", zap.String("event_id", evt.EventID), zap.Error(err))
			continue
		}

		row := &model.PaymentEvent{
			EventID:       evt.EventID,
			Type:          evt.Type,
			OrderID:       evt.OrderID,
			PaymentID:     evt.PaymentID,
			Provider:      evt.Provider,
			TransactionID: evt.TransactionID,
			AmountCents:   evt.AmountCents,
		}
		if err := c.db.Create(row).Error; err != nil {
			if errorsLikeUnique(err) {
				// Duplicate delivery; the row already exists.
				continue
			}
			c.log.Error("event_archive_failed", zap.String("event_id", evt.EventID), zap.Error(err))
			continue
		}
		c.log.Info("event_archived",
			zap.String("event_id", evt.EventID),
			zap.String("type", evt.Type),
			zap.Uint("payment_id", evt.PaymentID))
	}
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
