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

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/settlement"

	"go.uber.org/zap"
)

// processWithdrawal forwards a terminal payout. Payouts are initiated with
// an idempotency key that doubles as the provider reference, so that key
// is what the reconciler matches on.
func (l *Listener) processWithdrawal(ctx context.Context, tx models.PrimeTransaction, wallet models.WalletInfo) error {
	if tx.IdempotencyKey == "" {
		zap.L().Debug("Withdrawal was not initiated by the cashier",
			zap.String("provider_tx_id", tx.Id))
		l.markTransactionProcessed(tx.Id)
		return nil
	}

	outcome, terminal := outcomeForStatus(tx.Status)
	if !terminal {
		zap.L().Debug("Payout still in progress",
			zap.String("provider_tx_id", tx.Id),
			zap.String("provider_ref", tx.IdempotencyKey),
			zap.String("status", tx.Status))
		return nil
	}

	return l.deliver(ctx, tx, wallet, settlement.Callback{
		EventId:     eventId(tx),
		ProviderRef: tx.IdempotencyKey,
		Kind:        settlement.KindPayout,
		Outcome:     outcome,
	})
}
