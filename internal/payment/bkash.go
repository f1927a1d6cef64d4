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

// bKash-like native transaction statuses.
const (
	bkashInitiated = "Initiated"
	bkashCompleted = "Completed"
	bkashFailed    = "Failed"
)

type bkashPayment struct {
	PaymentID         string    `json:"paymentID"`
	TrxID             string    `json:"trxID,omitempty"`
	AmountCents       int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Intent            string    `json:"intent"`
	TransactionStatus string    `json:"transactionStatus"`
	MerchantInvoice   string    `json:"merchantInvoiceNumber"`
	CreatedAt         time.Time `json:"createTime"`
}

// BkashGateway is a sandbox adapter with the redirect-then-callback
// interaction shape: create returns a URL the customer is sent to, the
// provider calls back when the customer finishes, and confirm executes
// the payment server-side.
type BkashGateway struct {
	baseURL string

	mu       sync.Mutex
	payments map[string]*bkashPayment
}

func NewBkashGateway(baseURL string) *BkashGateway {
	return &BkashGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		payments: make(map[string]*bkashPayment),
	}
}

func (g *BkashGateway) Name() string { return "bkash" }

func (g *BkashGateway) CreatePayment(_ context.Context, amountCents int64, orderID uint, _ map[string]string) (*CreateResult, error) {
	if amountCents <= 0 {
		return nil, &ProviderError{Provider: g.Name(), Reason: "amount must be greater than zero"}
	}

	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	p := &bkashPayment{
		PaymentID:         "BKASH" + token[:12],
		AmountCents:       amountCents,
		Currency:          "BDT",
		Intent:            "sale",
		TransactionStatus: bkashInitiated,
		MerchantInvoice:   fmt.Sprintf("INV_%d", orderID),
		CreatedAt:         time.Now().UTC(),
	}

	g.mu.Lock()
	g.payments[p.PaymentID] = p
	g.mu.Unlock()

	raw, _ := json.Marshal(p)
	return &CreateResult{
		TransactionID: p.PaymentID,
		Extra: map[string]any{
			"bkash_url": fmt.Sprintf("%s/mock-bkash-payment?paymentID=%s", g.baseURL, p.PaymentID),
			"amount":    p.AmountCents,
			"currency":  p.Currency,
			"intent":    p.Intent,
		},
		Raw: raw,
	}, nil
}

// ConfirmPayment executes the payment. On this shape of provider the
// execute call is the server-side completion step; re-executing an
// already completed payment returns the same result.
func (g *BkashGateway) ConfirmPayment(_ context.Context, transactionID string) (*StatusSnapshot, error) {
	g.mu.Lock()
	p, ok := g.payments[transactionID]
	if !ok {
		g.mu.Unlock()
		return nil, &ProviderError{Provider: g.Name(), Reason: "no such payment: " + transactionID}
	}
	if p.TransactionStatus == bkashInitiated {
		p.TransactionStatus = bkashCompleted
		p.TrxID = "TRX" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:10]
	}
	snapshot := *p
	g.mu.Unlock()

	return g.snapshot(&snapshot)
}

func (g *BkashGateway) QueryPayment(_ context.Context, transactionID string) (*StatusSnapshot, error) {
	g.mu.Lock()
	p, ok := g.payments[transactionID]
	if !ok {
		g.mu.Unlock()
		return nil, &ProviderError{Provider: g.Name(), Reason: "no such payment: " + transactionID}
	}
	snapshot := *p
	g.mu.Unlock()

	return g.snapshot(&snapshot)
}

// HandleWebhook normalizes the provider callback sent after the
// customer finishes (or abandons) the redirect flow.
func (g *BkashGateway) HandleWebhook(payload []byte) (*WebhookResult, error) {
	var cb struct {
		PaymentID string `json:"paymentID"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, &ProviderError{Provider: g.Name(), Reason: "malformed callback payload: " + err.Error()}
	}
	if cb.PaymentID == "" {
		return nil, &ProviderError{Provider: g.Name(), Reason: "callback payload missing paymentID"}
	}

	result := &WebhookResult{TransactionID: cb.PaymentID, Raw: payload}
	if cb.Status == "" || strings.EqualFold(cb.Status, "success") {
		result.Status = WebhookSuccess
		g.markIfKnown(cb.PaymentID, bkashCompleted)
	} else {
		result.Status = WebhookFailed
		g.markIfKnown(cb.PaymentID, bkashFailed)
	}
	return result, nil
}

func (g *BkashGateway) markIfKnown(paymentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.payments[paymentID]; ok {
		p.TransactionStatus = status
	}
}

func (g *BkashGateway) snapshot(p *bkashPayment) (*StatusSnapshot, error) {
	raw, _ := json.Marshal(p)
	outcome := OutcomePending
	switch p.TransactionStatus {
	case bkashCompleted:
		outcome = OutcomeSuccess
	case bkashFailed:
		outcome = OutcomeFailed
	}
	return &StatusSnapshot{
		TransactionID:  p.PaymentID,
		ProviderStatus: p.TransactionStatus,
		Outcome:        outcome,
		Raw:            raw,
	}, nil
}
