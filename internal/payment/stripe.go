package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stripe-like native intent statuses.
const (
	stripeRequiresPaymentMethod = "requires_payment_method"
	stripeRequiresAction        = "requires_action"
	stripeProcessing            = "processing"
	stripeSucceeded             = "succeeded"
	stripeCanceled              = "canceled"
)

type stripeIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	AmountCents  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    time.Time         `json:"created"`
}

// StripeGateway is a sandbox adapter with the synchronous-intent
// interaction shape: the backend creates an intent, the client
// completes it out of band, and the backend confirms by re-reading the
// intent's status. Real protocol traffic is out of scope; the intent
// table lives in memory.
type StripeGateway struct {
	mu      sync.Mutex
	intents map[string]*stripeIntent
}

func NewStripeGateway() *StripeGateway {
	return &StripeGateway{intents: make(map[string]*stripeIntent)}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreatePayment(ctx context.Context, amountCents int64, orderID uint, metadata map[string]string) (*CreateResult, error) {
	if amountCents <= 0 {
		return nil, &ProviderError{Provider: g.Name(), Reason: "amount must be greater than zero"}
	}

	md := map[string]string{"order_id": fmt.Sprintf("%d", orderID)}
	for k, v := range metadata {
		md[k] = v
	}

	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	intent := &stripeIntent{
		ID:           "pi_" + token[:24],
		ClientSecret: "pi_" + token[:24] + "_secret_" + token[24:],
		AmountCents:  amountCents,
		Currency:     "usd",
		Status:       stripeRequiresPaymentMethod,
		Metadata:     md,
		CreatedAt:    time.Now().UTC(),
	}

	g.mu.Lock()
	g.intents[intent.ID] = intent
	g.mu.Unlock()

	raw, _ := json.Marshal(intent)
	return &CreateResult{
		TransactionID: intent.ID,
		Extra: map[string]any{
			"client_secret": intent.ClientSecret,
			"status":        intent.Status,
			"amount":        intent.AmountCents,
			"currency":      intent.Currency,
		},
		Raw: raw,
	}, nil
}

func (g *StripeGateway) ConfirmPayment(ctx context.Context, transactionID string) (*StatusSnapshot, error) {
	// Confirmation happens client-side; on this shape of provider a
	// confirm is just a status retrieval.
	return g.QueryPayment(ctx, transactionID)
}

func (g *StripeGateway) QueryPayment(_ context.Context, transactionID string) (*StatusSnapshot, error) {
	g.mu.Lock()
	intent, ok := g.intents[transactionID]
	if !ok {
		g.mu.Unlock()
		return nil, &ProviderError{Provider: g.Name(), Reason: "no such payment_intent: " + transactionID}
	}
	snapshot := *intent
	g.mu.Unlock()

	raw, _ := json.Marshal(&snapshot)
	return &StatusSnapshot{
		TransactionID:  snapshot.ID,
		ProviderStatus: snapshot.Status,
		Outcome:        stripeOutcome(snapshot.Status),
		Raw:            raw,
	}, nil
}

// HandleWebhook normalizes stripe-style events. Only the two intent
// terminal events are meaningful; everything else is ignored.
func (g *StripeGateway) HandleWebhook(payload []byte) (*WebhookResult, error) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &ProviderError{Provider: g.Name(), Reason: "malformed webhook payload: " + err.Error()}
	}
	if event.Type == "" {
		return nil, &ProviderError{Provider: g.Name(), Reason: "webhook payload missing event type"}
	}

	result := &WebhookResult{TransactionID: event.Data.Object.ID, Raw: payload}
	switch event.Type {
	case "payment_intent.succeeded":
		result.Status = WebhookSuccess
		g.settleIfKnown(event.Data.Object.ID, stripeSucceeded)
	case "payment_intent.payment_failed":
		result.Status = WebhookFailed
		g.settleIfKnown(event.Data.Object.ID, stripeCanceled)
	default:
		result.Status = WebhookIgnored
	}
	return result, nil
}

// Settle flips a sandbox intent to the given native status, standing
// in for the out-of-band client action. Used by the dev settle
// endpoint and tests.
func (g *StripeGateway) Settle(transactionID, status string) error {
	switch status {
	case stripeRequiresPaymentMethod, stripeRequiresAction, stripeProcessing, stripeSucceeded, stripeCanceled:
	default:
		return &ProviderError{Provider: g.Name(), Reason: "unsupported intent status: " + status}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[transactionID]
	if !ok {
		return &ProviderError{Provider: g.Name(), Reason: "no such payment_intent: " + transactionID}
	}
	intent.Status = status
	return nil
}

func (g *StripeGateway) settleIfKnown(transactionID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[transactionID]; ok {
		intent.Status = status
	}
}

func stripeOutcome(status string) Outcome {
	switch status {
	case stripeSucceeded:
		return OutcomeSuccess
	case stripeRequiresPaymentMethod, stripeRequiresAction, stripeProcessing:
		return OutcomePending
	default:
		return OutcomeFailed
	}
}
