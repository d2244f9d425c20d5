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
	"sort"
	"strings"
	"sync"
	"time"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/settlement"
)

// TransactionSource lists a provider wallet's recent transactions.
// *prime.Service satisfies it.
type TransactionSource interface {
	ListWalletTransactions(ctx context.Context, portfolioId, walletId string, since time.Time) ([]models.PrimeTransaction, error)
}

// CallbackSink receives the settlement callbacks the listener derives.
// *settlement.Reconciler satisfies it.
type CallbackSink interface {
	OnProviderCallback(ctx context.Context, cb settlement.Callback) (settlement.Reconciled, error)
}

// Recorder receives one call per wallet poll.
type Recorder interface {
	ListenerPolled(result string, unix float64)
}

// Config contains configuration for Listener
type Config struct {
	Source          TransactionSource
	Sink            CallbackSink
	Recorder        Recorder
	PortfolioId     string
	WalletIds       map[string]string // currency -> provider wallet id
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// Listener polls the payout provider for deposit and withdrawal status
// changes and hands terminal ones to the settlement reconciler. It is a
// fallback for missed webhooks; every callback it sends is idempotent.
type Listener struct {
	source   TransactionSource
	sink     CallbackSink
	recorder Recorder

	// State management for processed transactions
	processedTxIds  map[string]time.Time
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	portfolioId      string
	monitoredWallets []models.WalletInfo

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewListener creates a new provider status listener
func NewListener(cfg Config) *Listener {
	return &Listener{
		source:           cfg.Source,
		sink:             cfg.Sink,
		recorder:         cfg.Recorder,
		processedTxIds:   make(map[string]time.Time),
		lookbackWindow:   cfg.LookbackWindow,
		pollingInterval:  cfg.PollingInterval,
		cleanupInterval:  cfg.CleanupInterval,
		portfolioId:      cfg.PortfolioId,
		monitoredWallets: monitoredWallets(cfg.WalletIds),
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
	}
}

// monitoredWallets orders wallets by currency so polls are deterministic.
func monitoredWallets(walletIds map[string]string) []models.WalletInfo {
	wallets := make([]models.WalletInfo, 0, len(walletIds))
	for currency, id := range walletIds {
		wallets = append(wallets, models.WalletInfo{Id: id, Currency: strings.ToUpper(currency)})
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Currency < wallets[j].Currency })
	return wallets
}

// isTransactionProcessed checks if we've already processed this transaction
func (l *Listener) isTransactionProcessed(txId string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	_, exists := l.processedTxIds[txId]
	return exists
}

// markTransactionProcessed marks a transaction as processed
func (l *Listener) markTransactionProcessed(txId string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.processedTxIds[txId] = time.Now()
}

// cleanupProcessedTransactions forgets ids older than the lookback window;
// they can no longer be returned by a poll.
func (l *Listener) cleanupProcessedTransactions() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := time.Now().Add(-l.lookbackWindow)
	cleaned := 0
	for txId, processedTime := range l.processedTxIds {
		if processedTime.Before(cutoff) {
			delete(l.processedTxIds, txId)
			cleaned++
		}
	}
	return cleaned
}

func shortId(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
