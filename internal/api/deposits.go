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

package api

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

const actionDepositCreate = "deposit.create"

// CreateDeposit opens a pending deposit. The wallet is credited when the
// provider confirms it through HandleProviderEvent. Only staff may register a
// provider reference; a player's deposit gets a generated one.
func (s *CashierService) CreateDeposit(ctx context.Context, key string, req models.DepositRequest) (Result, error) {
	actor, err := requirePlayer(ctx, req.PlayerId)
	if err != nil {
		return Result{}, err
	}
	if req.ProviderRef != "" && !actor.IsStaff() {
		return Result{}, fmt.Errorf("%w: provider_ref can only be set by staff", store.ErrUnauthorized)
	}
	op, err := newOperation(actionDepositCreate, req.PlayerId, key, req)
	if err != nil {
		return Result{}, err
	}
	if rep, err := s.lookup(ctx, op); err != nil {
		return Result{}, err
	} else if rep != nil {
		return s.replayed(op, rep)
	}

	c, err := s.currency(req.Currency)
	if err != nil {
		return Result{}, err
	}
	if err := validateAmount(c, req.Amount); err != nil {
		return Result{}, err
	}
	if _, err := s.eligiblePlayer(ctx, req.PlayerId, false); err != nil {
		return Result{}, err
	}

	zap.L().Info("Creating deposit",
		zap.String("player_id", req.PlayerId),
		zap.String("currency", c.Symbol),
		zap.String("amount", req.Amount.String()),
		zap.String("idempotency_key", key))

	return s.once(ctx, op, func(ctx context.Context, u *ledger.Unit) (*models.Transaction, error) {
		return s.machine.CreateDeposit(ctx, u, ledger.NewDeposit{
			PlayerId:       req.PlayerId,
			Currency:       c.Symbol,
			Amount:         req.Amount,
			ProviderRef:    req.ProviderRef,
			IdempotencyKey: key,
			Actor:          actor,
		})
	})
}
