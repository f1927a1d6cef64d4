// Package payment holds the provider gateway abstraction, the
// provider registry and the orchestrator that drives the Payment state
// machine across create, confirm, query and webhook delivery.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound            = errors.New("payment: not found")
	ErrInvalidTransition   = errors.New("payment: invalid status transition")
	ErrUnknownProvider     = errors.New("payment: unknown provider")
	ErrTransactionMismatch = errors.New("payment: transaction id does not match payment")
)

// ProviderError is an adapter-level failure carrying the provider's
// raw error text.
type ProviderError struct {
	Provider string
	Reason   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment: provider %s: %s", e.Provider, e.Reason)
}

// Outcome is the normalized vocabulary every adapter maps its native
// statuses onto, so the orchestrator never branches per provider.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	// OutcomePending covers every in-progress or action-required native
	// status; the orchestrator leaves the payment untouched for these.
	OutcomePending Outcome = "pending"
)

// WebhookStatus is the normalized result of a provider notification.
type WebhookStatus string

const (
	WebhookSuccess WebhookStatus = "success"
	WebhookFailed  WebhookStatus = "failed"
	WebhookIgnored WebhookStatus = "ignored"
)

// CreateResult is a successful provider-side intent creation.
type CreateResult struct {
	TransactionID string
	// Extra carries the provider-specific handoff material the client
	// needs to finish the payment (client secret, redirect URL, ...).
	Extra map[string]any
	Raw   json.RawMessage
}

// StatusSnapshot is the provider's current view of a transaction.
type StatusSnapshot struct {
	TransactionID  string
	ProviderStatus string
	Outcome        Outcome
	Raw            json.RawMessage
}

// WebhookResult is a normalized provider notification.
type WebhookResult struct {
	TransactionID string
	Status        WebhookStatus
	Raw           json.RawMessage
}

// Gateway is the capability a provider adapter implements. Confirm and
// query are status reads on the provider side and must not create side
// effects when re-issued.
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, amountCents int64, orderID uint, metadata map[string]string) (*CreateResult, error)
	ConfirmPayment(ctx context.Context, transactionID string) (*StatusSnapshot, error)
	QueryPayment(ctx context.Context, transactionID string) (*StatusSnapshot, error)
	HandleWebhook(payload []byte) (*WebhookResult, error)
}

// Registry maps provider names to adapters. It is built once at
// startup and passed into the orchestrator; there is no package-level
// registration.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		r.gateways[gw.Name()] = gw
	}
	return r
}

// Resolve returns the adapter for name or ErrUnknownProvider.
func (r *Registry) Resolve(name string) (Gateway, error) {
	gw, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return gw, nil
}

// Names lists the registered providers in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
