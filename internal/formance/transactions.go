package formance

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Every cashier movement is a plain transfer between two accounts. The
// local ledger already enforced balances, so the mirror allows overdraft
// on the source rather than rejecting a movement the store accepted.
const numscriptMove = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $transaction_id
  string $event
  string $player_id
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("event", $event)
set_tx_meta("player_id", $player_id)
`

// Post records each movement under its reference. Movements already
// mirrored come back as conflicts and are skipped.
func (m *Mirror) Post(ctx context.Context, movements []models.Movement) error {
	for _, mv := range movements {
		postTx, err := m.postTransaction(mv)
		if err != nil {
			return err
		}

		_, err = m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
			Ledger:            m.ledger,
			V2PostTransaction: postTx,
		})
		if err != nil {
			if isConflictError(err) {
				zap.L().Debug("Movement already mirrored", zap.String("reference", mv.Reference()))
				continue
			}
			return fmt.Errorf("error mirroring movement %s: %w", mv.Reference(), err)
		}

		zap.L().Debug("Movement mirrored to Formance",
			zap.String("reference", mv.Reference()),
			zap.String("currency", mv.Currency),
			zap.String("amount", mv.Amount.String()))
	}
	return nil
}

func (m *Mirror) postTransaction(mv models.Movement) (shared.V2PostTransaction, error) {
	precision, err := m.precisionFor(mv.Currency)
	if err != nil {
		return shared.V2PostTransaction{}, err
	}
	amount, err := toSmallestUnit(mv.Amount, precision)
	if err != nil {
		return shared.V2PostTransaction{}, fmt.Errorf("movement %s: %w", mv.Reference(), err)
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(mv.Reference()),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptMove,
			Vars: map[string]string{
				"asset":          formanceAsset(mv.Currency, precision),
				"amount":         amount,
				"source":         mv.Source,
				"destination":    mv.Destination,
				"transaction_id": mv.TransactionId,
				"event":          mv.Event,
				"player_id":      mv.PlayerId,
			},
		},
	}
	if !mv.CreatedAt.IsZero() {
		ts := mv.CreatedAt
		postTx.Timestamp = &ts
	}
	return postTx, nil
}

// toSmallestUnit renders amount as an integer count of minor units.
func toSmallestUnit(amount decimal.Decimal, precision int) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(int32(precision))
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("amount %s exceeds precision %d", amount, precision)
	}
	return shifted.BigInt().String(), nil
}

func strPtr(s string) *string { return &s }
