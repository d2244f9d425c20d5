package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetWallet returns the wallet, or a zero wallet when the player never had one.
func (s *Service) GetWallet(ctx context.Context, key models.WalletKey) (*models.Wallet, error) {
	w, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, key.PlayerId, key.Currency))
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Wallet{PlayerId: key.PlayerId, Currency: key.Currency}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (s *Service) ListWallets(ctx context.Context, playerId string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryListWallets, playerId)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}

// ReconcileWallet verifies that both buckets match the sum of their journal entries
func (s *Service) ReconcileWallet(ctx context.Context, key models.WalletKey) error {
	zap.L().Info("Reconciling wallet", zap.String("player_id", key.PlayerId), zap.String("currency", key.Currency))

	w, err := s.GetWallet(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get current wallet: %w", err)
	}

	available, err := s.journalBalance(ctx, ledger.AvailableAccount(key.PlayerId), key.Currency)
	if err != nil {
		return err
	}
	held, err := s.journalBalance(ctx, ledger.HeldAccount(key.PlayerId), key.Currency)
	if err != nil {
		return err
	}

	// Exact decimal comparison
	if !w.Available.Equal(available) || !w.Held.Equal(held) {
		zap.L().Error("Wallet reconciliation failed",
			zap.String("player_id", key.PlayerId),
			zap.String("currency", key.Currency),
			zap.String("available", w.Available.String()),
			zap.String("journal_available", available.String()),
			zap.String("held", w.Held.String()),
			zap.String("journal_held", held.String()))
		return fmt.Errorf("wallet mismatch: available=%s/%s, held=%s/%s",
			w.Available.String(), available.String(), w.Held.String(), held.String())
	}

	zap.L().Info("Wallet reconciliation successful",
		zap.String("player_id", key.PlayerId),
		zap.String("currency", key.Currency),
		zap.String("total", w.Total().String()))
	return nil
}

func (s *Service) journalBalance(ctx context.Context, account, currency string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, queryJournalForAccount, account, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	balance := decimal.Zero
	for rows.Next() {
		var debitStr, creditStr string
		if err := rows.Scan(&debitStr, &creditStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		debit, err := decimal.NewFromString(debitStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse debit '%s': %w", debitStr, err)
		}
		credit, err := decimal.NewFromString(creditStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse credit '%s': %w", creditStr, err)
		}
		balance = balance.Add(debit).Sub(credit)
	}
	return balance, rows.Err()
}
