package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/internal/payment"
)

func validEvent() payment.Event {
	return payment.Event{
		EventID:       "evt-1",
		Type:          payment.EventPaymentSucceeded,
		OrderID:       1,
		PaymentID:     1,
		Provider:      "stripe",
		TransactionID: "pi_abc",
		AmountCents:   3500,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validate(validEvent()))

	cases := []struct {
		name   string
		mutate func(*payment.Event)
	}{
		{"missing event_id", func(e *payment.Event) { e.EventID = "" }},
		{"missing type", func(e *payment.Event) { e.Type = "" }},
		{"missing order_id", func(e *payment.Event) { e.OrderID = 0 }},
		{"missing payment_id", func(e *payment.Event) { e.PaymentID = 0 }},
		{"missing transaction_id", func(e *payment.Event) { e.TransactionID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := validEvent()
			tc.mutate(&evt)
			assert.Error(t, validate(evt))
		})
	}
}

func TestErrorsLikeUnique(t *testing.T) {
	assert.False(t, errorsLikeUnique(nil))
	assert.False(t, errorsLikeUnique(errors.New("database is locked")))
	assert.True(t, errorsLikeUnique(errors.New("UNIQUE constraint failed: payment_events.event_id")))
	assert.True(t, errorsLikeUnique(errors.New("duplicate key value violates unique constraint")))
}
