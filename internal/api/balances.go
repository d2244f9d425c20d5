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

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// GetBalance returns one wallet of a player
func (s *CashierService) GetBalance(ctx context.Context, playerId, currency string) (models.BalanceView, error) {
	if _, err := requireReader(ctx, playerId); err != nil {
		return models.BalanceView{}, err
	}
	c, err := s.currency(currency)
	if err != nil {
		return models.BalanceView{}, err
	}

	w, err := s.store.GetWallet(ctx, models.WalletKey{PlayerId: playerId, Currency: c.Symbol})
	if err != nil {
		zap.L().Error("Failed to get wallet",
			zap.String("player_id", playerId),
			zap.String("currency", c.Symbol),
			zap.Error(err))
		return models.BalanceView{}, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	return models.BalanceView{
		PlayerId:  playerId,
		Currency:  c.Symbol,
		Available: w.Available,
		Held:      w.Held,
		Total:     w.Total(),
	}, nil
}

// TransactionQuery filters a player's history
type TransactionQuery struct {
	Type     string
	State    string
	Currency string
	Limit    int
	Offset   int
}

// ListTransactions returns paginated transaction history for a player
func (s *CashierService) ListTransactions(ctx context.Context, playerId string, q TransactionQuery) (models.TransactionPage, error) {
	if _, err := requireReader(ctx, playerId); err != nil {
		return models.TransactionPage{}, err
	}

	filter := store.TransactionFilter{PlayerId: playerId, Limit: q.Limit, Offset: q.Offset}
	if filter.Limit <= 0 || filter.Limit > maxPageLimit {
		filter.Limit = defaultPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if q.Type != "" {
		kind, err := lifecycle.ParseKind(q.Type)
		if err != nil {
			return models.TransactionPage{}, fmt.Errorf("%w: %v", store.ErrBadRequest, err)
		}
		filter.Type = kind
	}
	if q.State != "" {
		state, err := lifecycle.ParseState(q.State)
		if err != nil {
			return models.TransactionPage{}, fmt.Errorf("%w: %v", store.ErrBadRequest, err)
		}
		filter.State = state
	}
	if q.Currency != "" {
		c, err := s.currency(q.Currency)
		if err != nil {
			return models.TransactionPage{}, err
		}
		filter.Currency = c.Symbol
	}

	transactions, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		zap.L().Error("Failed to get transaction history", zap.String("player_id", playerId), zap.Error(err))
		return models.TransactionPage{}, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	page := models.TransactionPage{
		Transactions: make([]models.TransactionRecord, len(transactions)),
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	for i := range transactions {
		page.Transactions[i] = models.NewTransactionRecord(&transactions[i])
	}
	return page, nil
}

// GetTransaction returns one transaction with its transition history
func (s *CashierService) GetTransaction(ctx context.Context, transactionId string) (models.TransactionDetail, error) {
	t, err := s.store.GetTransaction(ctx, transactionId)
	if err != nil {
		return models.TransactionDetail{}, err
	}
	if _, err := requireReader(ctx, t.PlayerId); err != nil {
		return models.TransactionDetail{}, err
	}

	events, err := s.store.ListTransitionEvents(ctx, transactionId)
	if err != nil {
		return models.TransactionDetail{}, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	detail := models.TransactionDetail{
		TransactionRecord: models.NewTransactionRecord(t),
		Events:            make([]models.TransitionRecord, len(events)),
	}
	for i, e := range events {
		detail.Events[i] = models.TransitionRecord{
			From:      string(e.FromState),
			To:        string(e.ToState),
			ActorId:   e.ActorId,
			ActorRole: e.ActorRole,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		}
	}
	return detail, nil
}
