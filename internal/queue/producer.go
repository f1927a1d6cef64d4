// Package queue connects the payment core to the Kafka event stream:
// the producer publishes terminal payment/order transitions, the
// consumer archives them into the payment_events audit table.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"shopcore/internal/payment"
)

// Producer wraps the Kafka writer. It implements payment.EventPublisher.
type Producer struct {
	w *kafka.Writer
}

// NewProducer configures the writer for reliability:
// - Hash + key: events for one transaction land on one partition.
// - RequireAll: wait for ISR acknowledgement before reporting success.
// - MaxAttempts/timeouts bound retries so a broker outage cannot hang
//   a request (publishing is best-effort upstream anyway).
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Close releases the writer.
func (p *Producer) Close() error { return p.w.Close() }

// Publish writes one payment event, keyed by transaction id.
func (p *Producer) Publish(ctx context.Context, evt payment.Event) error {
	if err := validate(evt); err != nil {
		return err
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.TransactionID),
		Value: b,
	})
}

// validate keeps dirty events out of the stream so the consumer never
// has to guess.
func validate(evt payment.Event) error {
	if evt.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if evt.Type == "" {
		return fmt.Errorf("type is required")
	}
	if evt.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if evt.PaymentID == 0 {
		return fmt.Errorf("payment_id is required")
	}
	if evt.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}
	return nil
}
