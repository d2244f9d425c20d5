/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/settlement"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// processDeposit forwards a terminal inbound transfer. The provider's
// transaction id is the deposit's provider reference.
func (l *Listener) processDeposit(ctx context.Context, tx models.PrimeTransaction, wallet models.WalletInfo) error {
	outcome, terminal := outcomeForStatus(tx.Status)
	if !terminal {
		zap.L().Debug("Deposit not yet settled",
			zap.String("provider_tx_id", tx.Id),
			zap.String("status", tx.Status))
		return nil
	}

	var amount decimal.Decimal
	if tx.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(tx.Amount); err != nil {
			return fmt.Errorf("deposit %s has invalid amount %q: %w", shortId(tx.Id), tx.Amount, err)
		}
		amount = amount.Abs()
	}

	return l.deliver(ctx, tx, wallet, settlement.Callback{
		EventId:     eventId(tx),
		ProviderRef: tx.Id,
		Kind:        settlement.KindDeposit,
		Outcome:     outcome,
		Amount:      amount,
	})
}

// deliver sends the callback and marks the provider transaction processed
// unless the reconciler could not find a matching local record yet.
func (l *Listener) deliver(ctx context.Context, tx models.PrimeTransaction, wallet models.WalletInfo, cb settlement.Callback) error {
	res, err := l.sink.OnProviderCallback(ctx, cb)
	if err != nil {
		return fmt.Errorf("reconcile %s %s: %w", cb.Kind, shortId(cb.ProviderRef), err)
	}

	if res.Result == settlement.ResultDropped {
		zap.L().Debug("No local transaction for provider reference yet",
			zap.String("provider_ref", cb.ProviderRef),
			zap.String("kind", string(cb.Kind)))
		return nil
	}

	l.markTransactionProcessed(tx.Id)

	zap.L().Info("Provider status reconciled",
		zap.String("provider_tx_id", shortId(tx.Id)),
		zap.String("transaction_id", res.TransactionId),
		zap.String("currency", wallet.Currency),
		zap.String("kind", string(cb.Kind)),
		zap.String("outcome", string(cb.Outcome)),
		zap.String("result", string(res.Result)))
	return nil
}

// outcomeForStatus maps a provider transaction status to a settlement
// outcome. Non-terminal statuses report false.
func outcomeForStatus(status string) (settlement.Outcome, bool) {
	switch status {
	case "TRANSACTION_DONE":
		return settlement.OutcomeSuccess, true
	case "TRANSACTION_CANCELLED", "TRANSACTION_REJECTED", "TRANSACTION_FAILED", "TRANSACTION_EXPIRED":
		return settlement.OutcomeFailure, true
	default:
		return "", false
	}
}

func eventId(tx models.PrimeTransaction) string {
	return "prime:" + tx.Id + ":" + tx.Status
}
