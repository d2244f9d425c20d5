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

package ledger

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcome says where a released hold goes.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeReturned Outcome = "returned"
)

// Journal events, one movement each.
const (
	EventDepositSettled   = "deposit_settled"
	EventWithdrawalHold   = "withdrawal_hold"
	EventWithdrawalPaid   = "withdrawal_paid"
	EventWithdrawalReturn = "withdrawal_returned"
)

// Ledger owns the available/held buckets. Every method runs inside the Unit it
// is given and locks the wallet row for the rest of that unit.
type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

// ApplyDepositSettlement credits available by amount.
func (l *Ledger) ApplyDepositSettlement(ctx context.Context, u *Unit, key models.WalletKey, amount decimal.Decimal, transactionId string) (*models.Wallet, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	w, err := u.tx.GetWalletForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet %s: %w", key, err)
	}

	w.Available = w.Available.Add(amount)
	if err := l.save(ctx, u, w); err != nil {
		return nil, err
	}

	if err := u.record(ctx, models.Movement{
		TransactionId: transactionId,
		Event:         EventDepositSettled,
		PlayerId:      key.PlayerId,
		Currency:      key.Currency,
		Amount:        amount,
		Source:        DepositsAccount(),
		Destination:   AvailableAccount(key.PlayerId),
	}); err != nil {
		return nil, err
	}

	zap.L().Info("Deposit settled into wallet",
		zap.String("player_id", key.PlayerId),
		zap.String("currency", key.Currency),
		zap.String("amount", amount.String()),
		zap.String("available", w.Available.String()))

	return w, nil
}

// PlaceWithdrawalHold moves amount from available to held, failing with
// ErrInsufficientFunds when available is short.
func (l *Ledger) PlaceWithdrawalHold(ctx context.Context, u *Unit, key models.WalletKey, amount decimal.Decimal, transactionId string) (*models.Wallet, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	w, err := u.tx.GetWalletForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet %s: %w", key, err)
	}

	if w.Available.LessThan(amount) {
		return nil, fmt.Errorf("%w: available %s, requested %s %s",
			store.ErrInsufficientFunds, w.Available.String(), amount.String(), key.Currency)
	}

	w.Available = w.Available.Sub(amount)
	w.Held = w.Held.Add(amount)
	if err := l.save(ctx, u, w); err != nil {
		return nil, err
	}

	if err := u.record(ctx, models.Movement{
		TransactionId: transactionId,
		Event:         EventWithdrawalHold,
		PlayerId:      key.PlayerId,
		Currency:      key.Currency,
		Amount:        amount,
		Source:        AvailableAccount(key.PlayerId),
		Destination:   HeldAccount(key.PlayerId),
	}); err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal hold placed",
		zap.String("player_id", key.PlayerId),
		zap.String("currency", key.Currency),
		zap.String("amount", amount.String()),
		zap.String("available", w.Available.String()),
		zap.String("held", w.Held.String()))

	return w, nil
}

// ReleaseHold removes amount from held. Returned funds go back to available,
// paid funds leave the wallet.
func (l *Ledger) ReleaseHold(ctx context.Context, u *Unit, key models.WalletKey, amount decimal.Decimal, outcome Outcome, transactionId string) (*models.Wallet, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if outcome != OutcomePaid && outcome != OutcomeReturned {
		return nil, fmt.Errorf("unknown release outcome %q", outcome)
	}

	w, err := u.tx.GetWalletForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet %s: %w", key, err)
	}

	if w.Held.LessThan(amount) {
		zap.L().Error("Hold release exceeds held balance",
			zap.String("player_id", key.PlayerId),
			zap.String("currency", key.Currency),
			zap.String("held", w.Held.String()),
			zap.String("amount", amount.String()),
			zap.String("transaction_id", transactionId))
		return nil, fmt.Errorf("%w: held %s below release %s %s",
			store.ErrInvariantViolation, w.Held.String(), amount.String(), key.Currency)
	}

	w.Held = w.Held.Sub(amount)
	movement := models.Movement{
		TransactionId: transactionId,
		PlayerId:      key.PlayerId,
		Currency:      key.Currency,
		Amount:        amount,
		Source:        HeldAccount(key.PlayerId),
	}
	if outcome == OutcomeReturned {
		w.Available = w.Available.Add(amount)
		movement.Event = EventWithdrawalReturn
		movement.Destination = AvailableAccount(key.PlayerId)
	} else {
		movement.Event = EventWithdrawalPaid
		movement.Destination = PayoutsAccount()
	}

	if err := l.save(ctx, u, w); err != nil {
		return nil, err
	}
	if err := u.record(ctx, movement); err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal hold released",
		zap.String("player_id", key.PlayerId),
		zap.String("currency", key.Currency),
		zap.String("amount", amount.String()),
		zap.String("outcome", string(outcome)),
		zap.String("available", w.Available.String()),
		zap.String("held", w.Held.String()))

	return w, nil
}

func (l *Ledger) save(ctx context.Context, u *Unit, w *models.Wallet) error {
	if w.Available.IsNegative() || w.Held.IsNegative() {
		return fmt.Errorf("%w: wallet %s would go negative", store.ErrInvariantViolation, w.Key())
	}
	w.UpdatedAt = u.now
	if err := u.tx.UpdateWallet(ctx, w); err != nil {
		return fmt.Errorf("failed to update wallet %s: %w", w.Key(), err)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", store.ErrInvalidAmount, amount.String())
	}
	return nil
}
