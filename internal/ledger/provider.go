package ledger

import (
	"context"

	"cashier-settlement-go/internal/models"
)

// PayoutProvider sends money out. InitiatePayout must be safe to call again
// with the same IdempotencyKey; a provider that sees a repeated key returns
// the original payout. Transient faults are wrapped in store.ErrProviderTransient.
type PayoutProvider interface {
	Name() string
	InitiatePayout(ctx context.Context, instruction models.PayoutInstruction) (*models.Payout, error)
}
