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
	"sync"
	"time"

	"cashier-settlement-go/internal/models"

	"go.uber.org/zap"
)

// Start validates the configuration and begins polling in the background.
func (l *Listener) Start(ctx context.Context) error {
	if l.source == nil || l.sink == nil {
		return fmt.Errorf("listener requires a transaction source and a callback sink")
	}
	if len(l.monitoredWallets) == 0 {
		return fmt.Errorf("no wallets to monitor, set PRIME_WALLET_IDS")
	}
	if l.pollingInterval <= 0 || l.cleanupInterval <= 0 {
		return fmt.Errorf("polling and cleanup intervals must be positive")
	}

	go l.pollLoop(ctx)
	go l.cleanupLoop(ctx)

	zap.L().Info("Provider listener started",
		zap.Int("wallets", len(l.monitoredWallets)),
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("lookback_window", l.lookbackWindow))

	return nil
}

// Stop gracefully stops the listener and waits for the poll loop to exit.
func (l *Listener) Stop() {
	zap.L().Info("Stopping provider listener")
	l.stopOnce.Do(func() { close(l.stopChan) })
	<-l.doneChan
	zap.L().Info("Provider listener stopped")
}

// pollLoop polls immediately, which also recovers anything missed while
// the process was down, and then on every tick.
func (l *Listener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	l.PollOnce(ctx)

	for {
		select {
		case <-ticker.C:
			l.PollOnce(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce polls every monitored wallet concurrently.
func (l *Listener) PollOnce(ctx context.Context) {
	since := time.Now().UTC().Add(-l.lookbackWindow)

	var wg sync.WaitGroup
	for _, wallet := range l.monitoredWallets {
		wg.Add(1)
		go func(w models.WalletInfo) {
			defer wg.Done()

			result := "ok"
			if err := l.pollWallet(ctx, w, since); err != nil {
				result = "error"
				zap.L().Error("Failed to poll wallet",
					zap.String("wallet_id", w.Id),
					zap.String("currency", w.Currency),
					zap.Error(err))
			}
			if l.recorder != nil {
				l.recorder.ListenerPolled(result, float64(time.Now().Unix()))
			}
		}(wallet)
	}
	wg.Wait()
}

func (l *Listener) pollWallet(ctx context.Context, wallet models.WalletInfo, since time.Time) error {
	transactions, err := l.source.ListWalletTransactions(ctx, l.portfolioId, wallet.Id, since)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}

	newCount := 0
	for _, tx := range transactions {
		if l.isTransactionProcessed(tx.Id) {
			continue
		}
		newCount++

		if err := l.processTransaction(ctx, tx, wallet); err != nil {
			zap.L().Error("Failed to process provider transaction",
				zap.String("provider_tx_id", shortId(tx.Id)),
				zap.String("wallet_id", wallet.Id),
				zap.String("type", tx.Type),
				zap.String("status", tx.Status),
				zap.Error(err))
		}
	}

	if newCount == 0 && len(transactions) > 0 {
		zap.L().Debug("All transactions already processed",
			zap.String("wallet_id", wallet.Id),
			zap.String("currency", wallet.Currency),
			zap.Int("total", len(transactions)))
	}

	return nil
}

func (l *Listener) processTransaction(ctx context.Context, tx models.PrimeTransaction, wallet models.WalletInfo) error {
	switch tx.Type {
	case "DEPOSIT":
		return l.processDeposit(ctx, tx, wallet)
	case "WITHDRAWAL":
		return l.processWithdrawal(ctx, tx, wallet)
	default:
		zap.L().Debug("Ignoring provider transaction type",
			zap.String("provider_tx_id", tx.Id),
			zap.String("type", tx.Type))
		l.markTransactionProcessed(tx.Id)
		return nil
	}
}

// cleanupLoop periodically cleans old processed transaction IDs
func (l *Listener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := l.cleanupProcessedTransactions(); cleaned > 0 {
				zap.L().Debug("Cleaned up old processed transactions", zap.Int("cleaned", cleaned))
			}
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
