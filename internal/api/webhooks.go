package api

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/settlement"
	"cashier-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

// HandleProviderEvent hands a verified provider webhook to the reconciler.
func (s *CashierService) HandleProviderEvent(ctx context.Context, ev models.ProviderEvent) (models.WebhookAck, error) {
	var amount decimal.Decimal
	if ev.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(ev.Amount); err != nil || !amount.IsPositive() {
			return models.WebhookAck{}, fmt.Errorf("%w: invalid amount %q", store.ErrBadRequest, ev.Amount)
		}
	}

	out, err := s.reconciler.OnProviderCallback(ctx, settlement.Callback{
		ProviderRef: ev.ProviderRef,
		Outcome:     settlement.Outcome(ev.Outcome),
		Kind:        settlement.Kind(ev.Kind),
		EventId:     ev.EventId,
		Amount:      amount,
	})
	if err != nil {
		return models.WebhookAck{}, err
	}
	return models.WebhookAck{Result: string(out.Result), TransactionId: out.TransactionId}, nil
}
