package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shopcore/internal/model"
	"shopcore/internal/order"
)

// Config bounds the orchestrator's interaction with providers.
type Config struct {
	// ProviderTimeout caps every outbound provider call. A timed-out
	// confirm marks the payment failed instead of leaving it pending.
	ProviderTimeout time.Duration
	// PendingTTL is how long a payment may sit in pending before a
	// query-side refresh writes it off as failed.
	PendingTTL time.Duration
}

func (c *Config) fill() {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 24 * time.Hour
	}
}

// Service coordinates the order manager and the gateway registry
// across the create → confirm → webhook lifecycle, and owns the
// Payment entity.
type Service struct {
	db       *gorm.DB
	orders   *order.Service
	registry *Registry
	events   EventPublisher
	log      *zap.Logger
	cfg      Config
}

func NewService(db *gorm.DB, orders *order.Service, registry *Registry, events EventPublisher, log *zap.Logger, cfg Config) *Service {
	cfg.fill()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       db,
		orders:   orders,
		registry: registry,
		events:   events,
		log:      log.With(zap.String("component", "payment_service")),
		cfg:      cfg,
	}
}

// CreateResponse merges the adapter's handoff material with the
// internal payment id.
type CreateResponse struct {
	PaymentID     uint           `json:"payment_id"`
	OrderID       uint           `json:"order_id"`
	Provider      string         `json:"provider"`
	TransactionID string         `json:"transaction_id"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// WebhookOutcome summarizes what a provider notification did.
type WebhookOutcome struct {
	TransactionID string        `json:"transaction_id,omitempty"`
	Status        WebhookStatus `json:"status"`
	Message       string        `json:"message,omitempty"`
}

// CreatePayment opens a provider-side intent for a pending order and
// persists the attempt. The charged amount is always the order's
// computed total. If the adapter fails, no Payment row is written.
func (s *Service) CreatePayment(ctx context.Context, orderID uint, providerName string, userID int64, metadata map[string]string) (*CreateResponse, error) {
	ord, err := s.orders.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if ord.Status != model.OrderPending {
		return nil, fmt.Errorf("%w: order is %q, payment requires a pending order", order.ErrInvalidTransition, ord.Status)
	}

	gw, err := s.registry.Resolve(providerName)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	res, err := gw.CreatePayment(callCtx, ord.TotalCents, ord.ID, metadata)
	if err != nil {
		s.log.Warn("provider_create_failed",
			zap.Uint("order_id", ord.ID),
			zap.String("provider", providerName),
			zap.Error(err))
		return nil, err
	}

	pay := &model.Payment{
		OrderID:       ord.ID,
		Provider:      providerName,
		TransactionID: res.TransactionID,
		Status:        model.PaymentPending,
		RawResponse:   res.Raw,
	}
	if err := s.db.WithContext(ctx).Create(pay).Error; err != nil {
		return nil, err
	}

	s.log.Info("payment_created",
		zap.Uint("payment_id", pay.ID),
		zap.Uint("order_id", ord.ID),
		zap.String("provider", providerName),
		zap.String("transaction_id", res.TransactionID))

	return &CreateResponse{
		PaymentID:     pay.ID,
		OrderID:       ord.ID,
		Provider:      providerName,
		TransactionID: res.TransactionID,
		Extra:         res.Extra,
	}, nil
}

// ConfirmPayment asks the provider for the transaction's status and
// maps it onto the payment state machine. An explicit success settles
// the payment and marks the order paid; an explicit failure marks the
// payment failed; in-progress statuses leave it pending. Confirming an
// already-terminal payment is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID uint, transactionID string) (*model.Payment, error) {
	pay, err := s.getByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if transactionID != "" && transactionID != pay.TransactionID {
		return nil, ErrTransactionMismatch
	}
	if pay.Status != model.PaymentPending {
		return pay, nil
	}

	// The adapter comes from the payment's stored provider, never from
	// the caller, so one provider cannot confirm another's transaction.
	gw, err := s.registry.Resolve(pay.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	snap, err := gw.ConfirmPayment(callCtx, pay.TransactionID)
	if err != nil {
		s.failPayment(ctx, pay, errorRaw(err), "provider_confirm_failed")
		return nil, err
	}

	return s.applySnapshot(ctx, pay, snap)
}

// QueryPayment is a read-through refresh: it returns the freshest
// known state, reconciling the stored row when the provider reports a
// terminal state the row does not yet reflect. A payment that has been
// pending longer than the configured TTL with the provider still
// non-terminal is written off as failed.
func (s *Service) QueryPayment(ctx context.Context, paymentID uint) (*model.Payment, error) {
	pay, err := s.getByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.Status != model.PaymentPending {
		return pay, nil
	}

	gw, err := s.registry.Resolve(pay.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	snap, err := gw.QueryPayment(callCtx, pay.TransactionID)
	if err != nil {
		return nil, err
	}

	if snap.Outcome == OutcomePending && time.Since(pay.CreatedAt) > s.cfg.PendingTTL {
		s.failPayment(ctx, pay, expiredRaw(snap.Raw), "payment_expired")
		return s.getByID(ctx, paymentID)
	}
	return s.applySnapshot(ctx, pay, snap)
}

// GetByOrder returns the most recent payment attempt for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID uint) (*model.Payment, error) {
	var pay model.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&pay).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pay, nil
}

// Providers lists the registered provider names.
func (s *Service) Providers() []string { return s.registry.Names() }

// HandleWebhook normalizes an asynchronous provider notification and
// applies it with at-most-once effect. A notification for an unknown
// transaction is ignored, not an error; duplicate delivery of a
// terminal status is a no-op; a terminal status conflicting with the
// stored one is ignored and logged, never overwritten.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, payload []byte) (*WebhookOutcome, error) {
	gw, err := s.registry.Resolve(providerName)
	if err != nil {
		return nil, err
	}
	result, err := gw.HandleWebhook(payload)
	if err != nil {
		return nil, err
	}

	if result.Status == WebhookIgnored || result.TransactionID == "" {
		s.log.Info("webhook_ignored", zap.String("provider", providerName))
		return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookIgnored, Message: "event ignored"}, nil
	}

	var pay model.Payment
	err = s.db.WithContext(ctx).Where("transaction_id = ?", result.TransactionID).First(&pay).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Info("webhook_unknown_transaction",
				zap.String("provider", providerName),
				zap.String("transaction_id", result.TransactionID))
			return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookIgnored, Message: "unknown transaction"}, nil
		}
		return nil, err
	}

	if pay.Status != model.PaymentPending {
		duplicate := (pay.Status == model.PaymentSuccess && result.Status == WebhookSuccess) ||
			(pay.Status == model.PaymentFailed && result.Status == WebhookFailed)
		if duplicate {
			return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookIgnored, Message: "duplicate delivery"}, nil
		}
		s.log.Warn("webhook_conflicting_terminal_status",
			zap.Uint("payment_id", pay.ID),
			zap.String("stored_status", string(pay.Status)),
			zap.String("webhook_status", string(result.Status)))
		return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookIgnored, Message: "conflicting terminal status ignored"}, nil
	}

	switch result.Status {
	case WebhookSuccess:
		if err := s.settle(ctx, &pay, result.Raw); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// Lost a race with a concurrent confirm; the effect is
				// already applied exactly once.
				return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookIgnored, Message: "already settled"}, nil
			}
			// Settlement failed (e.g. stock gone at capture time): the
			// payment is marked failed, and the provider must not be
			// retried into an error state.
			s.failPayment(ctx, &pay, captureFailureRaw(err, result.Raw), "webhook_settle_failed")
			return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookFailed, Message: err.Error()}, nil
		}
		return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookSuccess, Message: "payment settled"}, nil
	default:
		s.failPayment(ctx, &pay, result.Raw, "webhook_payment_failed")
		return &WebhookOutcome{TransactionID: result.TransactionID, Status: WebhookFailed, Message: "payment failed"}, nil
	}
}

// applySnapshot maps a provider status snapshot onto the payment
// state machine. Used by both the confirm and query paths.
func (s *Service) applySnapshot(ctx context.Context, pay *model.Payment, snap *StatusSnapshot) (*model.Payment, error) {
	switch snap.Outcome {
	case OutcomeSuccess:
		if err := s.settle(ctx, pay, snap.Raw); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return s.getByID(ctx, pay.ID)
			}
			s.failPayment(ctx, pay, captureFailureRaw(err, snap.Raw), "settle_failed")
			return nil, err
		}
		return s.getByID(ctx, pay.ID)
	case OutcomeFailed:
		s.failPayment(ctx, pay, snap.Raw, "payment_failed")
		return s.getByID(ctx, pay.ID)
	default:
		// In-progress on the provider side: keep pending, refresh the
		// audit payload only.
		err := s.db.WithContext(ctx).Model(pay).Update("raw_response", []byte(snap.Raw)).Error
		if err != nil {
			return nil, err
		}
		return s.getByID(ctx, pay.ID)
	}
}

// settle transitions pending → success and marks the order paid in
// one transaction. The conditional UPDATE on the prior status makes
// the whole side effect at-most-once under concurrent confirm and
// webhook delivery; losing the race reports ErrInvalidTransition.
func (s *Service) settle(ctx context.Context, pay *model.Payment, raw json.RawMessage) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Payment{}).
			Where("id = ? AND status = ?", pay.ID, model.PaymentPending).
			Updates(map[string]any{
				"status":       model.PaymentSuccess,
				"raw_response": []byte(raw),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return s.orders.MarkPaidTx(tx, pay.OrderID)
	})
	if err != nil {
		return err
	}

	s.log.Info("payment_settled",
		zap.Uint("payment_id", pay.ID),
		zap.Uint("order_id", pay.OrderID),
		zap.String("provider", pay.Provider))
	s.publish(ctx, EventPaymentSucceeded, pay)
	s.publish(ctx, EventOrderPaid, pay)
	return nil
}

// failPayment transitions pending → failed and persists the provider
// payload. Best-effort: losing the race to another terminal
// transition leaves the row untouched.
func (s *Service) failPayment(ctx context.Context, pay *model.Payment, raw json.RawMessage, event string) {
	res := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", pay.ID, model.PaymentPending).
		Updates(map[string]any{
			"status":       model.PaymentFailed,
			"raw_response": []byte(raw),
		})
	if res.Error != nil {
		s.log.Error("payment_fail_transition_error", zap.Uint("payment_id", pay.ID), zap.Error(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		return
	}
	s.log.Info(event,
		zap.Uint("payment_id", pay.ID),
		zap.Uint("order_id", pay.OrderID),
		zap.String("provider", pay.Provider))
	s.publish(ctx, EventPaymentFailed, pay)
}

func (s *Service) publish(ctx context.Context, eventType string, pay *model.Payment) {
	if s.events == nil {
		return
	}
	var amount int64
	s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", pay.OrderID).
		Pluck("total_cents", &amount)
	evt := Event{
		EventID:       uuid.New().String(),
		Type:          eventType,
		OrderID:       pay.OrderID,
		PaymentID:     pay.ID,
		Provider:      pay.Provider,
		TransactionID: pay.TransactionID,
		AmountCents:   amount,
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("event_publish_failed",
			zap.String("type", eventType),
			zap.Uint("payment_id", pay.ID),
			zap.Error(err))
	}
}

func (s *Service) getByID(ctx context.Context, paymentID uint) (*model.Payment, error) {
	var pay model.Payment
	if err := s.db.WithContext(ctx).First(&pay, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pay, nil
}

func errorRaw(err error) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return raw
}

func expiredRaw(providerRaw json.RawMessage) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"error":             "payment expired before completion",
		"provider_response": providerRaw,
	})
	return raw
}

func captureFailureRaw(err error, providerRaw json.RawMessage) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"error":             err.Error(),
		"provider_response": providerRaw,
	})
	return raw
}
