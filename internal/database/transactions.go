package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

type scanner interface {
	Scan(dest ...any) error
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransaction, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns history newest first
func (s *Service) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("player_id", filter.PlayerId),
		zap.String("type", string(filter.Type)),
		zap.String("state", string(filter.State)),
		zap.Int("limit", filter.Limit),
		zap.Int("offset", filter.Offset))

	var where []string
	var args []any
	if filter.PlayerId != "" {
		where = append(where, "player_id = ?")
		args = append(args, filter.PlayerId)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.Currency != "" {
		where = append(where, "currency = ?")
		args = append(args, filter.Currency)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := queryListTransactions
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}

func (s *Service) ListTransitionEvents(ctx context.Context, transactionId string) ([]models.TransitionEvent, error) {
	rows, err := s.db.QueryContext(ctx, queryListTransitionEvents, transactionId)
	if err != nil {
		return nil, fmt.Errorf("failed to list transition events: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var events []models.TransitionEvent
	for rows.Next() {
		var e models.TransitionEvent
		var from, to string
		if err := rows.Scan(&e.Id, &e.TransactionId, &from, &to, &e.ActorId, &e.ActorRole,
			&e.Reason, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition event: %w", err)
		}
		e.FromState = lifecycle.State(from)
		e.ToState = lifecycle.State(to)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transition events: %w", err)
	}
	return events, nil
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var txType, state, amountStr string
	var providerRef sql.NullString
	var reviewedAt, claimedAt sql.NullTime

	err := row.Scan(&t.Id, &txType, &t.PlayerId, &t.Currency, &amountStr, &state, &providerRef,
		&t.IdempotencyKey, &t.Destination, &t.Reason, &t.PayoutAttempts, &t.PayoutClaim, &claimedAt,
		&t.ReviewedBy, &reviewedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	t.Type = lifecycle.Kind(txType)
	t.State = lifecycle.State(state)
	t.ProviderRef = providerRef.String
	if reviewedAt.Valid {
		ts := reviewedAt.Time
		t.ReviewedAt = &ts
	}
	if claimedAt.Valid {
		ts := claimedAt.Time
		t.PayoutClaimedAt = &ts
	}
	return &t, nil
}

func scanWallet(row scanner) (*models.Wallet, error) {
	var w models.Wallet
	var availableStr, heldStr string
	if err := row.Scan(&w.PlayerId, &w.Currency, &availableStr, &heldStr, &w.Version, &w.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	w.Available, err = decimal.NewFromString(availableStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse available '%s': %w", availableStr, err)
	}
	w.Held, err = decimal.NewFromString(heldStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse held '%s': %w", heldStr, err)
	}
	return &w, nil
}

func scanPlayer(row scanner) (*models.Player, error) {
	var p models.Player
	var kyc string
	if err := row.Scan(&p.Id, &p.Name, &p.Email, &kyc, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.KycStatus = models.KycStatus(kyc)
	return &p, nil
}
