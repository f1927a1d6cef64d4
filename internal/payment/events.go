package payment

import "context"

// Event types published on the payment event stream.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventOrderPaid        = "order.paid"
)

// Event is the message emitted for every terminal payment transition
// and every order-paid transition. EventID is the dedupe key for the
// audit consumer.
type Event struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	OrderID       uint   `json:"order_id"`
	PaymentID     uint   `json:"payment_id"`
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// EventPublisher is the outbound port for the event stream. Publishing
// is best-effort from the orchestrator's point of view: a publish
// failure is logged, never surfaced to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}
