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
	"strings"
	"time"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/settlement"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

const defaultInFlightLease = 2 * time.Minute

// Recorder receives idempotency and payout events, typically *metrics.Metrics.
type Recorder interface {
	IdempotentReplay(action string, status models.IdempotencyStatus)
	PayoutInitiated(provider, code string)
}

type nopRecorder struct{}

func (nopRecorder) IdempotentReplay(string, models.IdempotencyStatus) {}
func (nopRecorder) PayoutInitiated(string, string)                    {}

// CashierService is the server side of every cashier operation. Mutations
// are deduplicated by (scope, Idempotency-Key) and authorized against the
// actor on the context.
type CashierService struct {
	machine    *ledger.Machine
	store      store.LedgerStore
	provider   ledger.PayoutProvider
	reconciler *settlement.Reconciler
	currencies map[string]models.Currency
	lease      time.Duration
	recorder   Recorder
}

type Params struct {
	Machine    *ledger.Machine
	Provider   ledger.PayoutProvider
	Reconciler *settlement.Reconciler
	Currencies []models.Currency
	// InFlightLease is how long a reservation blocks its key before another
	// request may take it over.
	InFlightLease time.Duration
	Recorder      Recorder
}

func NewCashierService(p Params) (*CashierService, error) {
	if p.Machine == nil || p.Provider == nil || p.Reconciler == nil {
		return nil, fmt.Errorf("machine, provider and reconciler are required")
	}

	currencies := make(map[string]models.Currency, len(p.Currencies))
	for _, c := range p.Currencies {
		currencies[strings.ToUpper(c.Symbol)] = c
	}

	lease := p.InFlightLease
	if lease <= 0 {
		lease = defaultInFlightLease
	}
	recorder := p.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	zap.L().Info("Cashier service initialized",
		zap.String("payout_provider", p.Provider.Name()),
		zap.Int("currencies", len(currencies)),
		zap.Duration("in_flight_lease", lease))

	return &CashierService{
		machine:    p.Machine,
		store:      p.Machine.Store(),
		provider:   p.Provider,
		reconciler: p.Reconciler,
		currencies: currencies,
		lease:      lease,
		recorder:   recorder,
	}, nil
}

// Result is the response of a mutating operation. Replayed is set when it
// was answered from a stored idempotency record, for failures as well.
type Result struct {
	Transaction models.TransactionRecord
	Replayed    bool
}

func (s *CashierService) HealthCheck(ctx context.Context) error {
	if err := s.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
