package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

type scanner interface {
	Scan(dest ...any) error
}

func (s *Service) ListPlayers(ctx context.Context) ([]models.Player, error) {
	rows, err := s.pool.Query(ctx, queryListPlayers)
	if err != nil {
		return nil, fmt.Errorf("unable to query players: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan player row: %w", err)
		}
		players = append(players, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player rows: %w", err)
	}
	return players, nil
}

func (s *Service) GetPlayer(ctx context.Context, playerId string) (*models.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, queryGetPlayerById, playerId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: player %s", store.ErrNotFound, playerId)
		}
		return nil, fmt.Errorf("unable to query player by ID: %w", err)
	}
	return p, nil
}

func (s *Service) GetPlayerByEmail(ctx context.Context, email string) (*models.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, queryGetPlayerByEmail, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: player with email %s", store.ErrNotFound, email)
		}
		return nil, fmt.Errorf("unable to query player by email: %w", err)
	}
	return p, nil
}

func (s *Service) CreatePlayer(ctx context.Context, params store.CreatePlayerParams) (*models.Player, error) {
	id := params.Id
	if id == "" {
		id = uuid.New().String()
	}
	kyc := params.KycStatus
	if kyc == "" {
		kyc = models.KycPending
	}

	zap.L().Info("Creating player", zap.String("player_id", id), zap.String("email", params.Email))
	if _, err := s.pool.Exec(ctx, queryInsertPlayer, id, params.Name, params.Email, string(kyc), s.now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: player %s or email %s already exists", store.ErrBadRequest, params.Id, params.Email)
		}
		return nil, fmt.Errorf("unable to create player: %w", err)
	}
	return s.GetPlayer(ctx, id)
}

func (s *Service) SetKycStatus(ctx context.Context, playerId string, status models.KycStatus) error {
	tag, err := s.pool.Exec(ctx, queryUpdateKycStatus, string(status), s.now().UTC(), playerId)
	if err != nil {
		return fmt.Errorf("unable to update kyc status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: player %s", store.ErrNotFound, playerId)
	}
	return nil
}

func (s *Service) GetWallet(ctx context.Context, key models.WalletKey) (*models.Wallet, error) {
	w, err := scanWallet(s.pool.QueryRow(ctx, queryGetWallet, key.PlayerId, key.Currency))
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.Wallet{PlayerId: key.PlayerId, Currency: key.Currency}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (s *Service) ListWallets(ctx context.Context, playerId string) ([]models.Wallet, error) {
	rows, err := s.pool.Query(ctx, queryListWallets, playerId)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

func (s *Service) ReconcileWallet(ctx context.Context, key models.WalletKey) error {
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
	return nil
}

func (s *Service) journalBalance(ctx context.Context, account, currency string) (decimal.Decimal, error) {
	var sum string
	if err := s.pool.QueryRow(ctx, queryJournalBalance, account, currency).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum journal: %w", err)
	}
	balance, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse journal sum '%s': %w", sum, err)
	}
	return balance, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, queryGetTransaction, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.PlayerId != "" {
		where = append(where, "player_id = "+arg(filter.PlayerId))
	}
	if filter.Type != "" {
		where = append(where, "type = "+arg(string(filter.Type)))
	}
	if filter.State != "" {
		where = append(where, "state = "+arg(string(filter.State)))
	}
	if filter.Currency != "" {
		where = append(where, "currency = "+arg(filter.Currency))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := queryListTransactions
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

func (s *Service) ListTransitionEvents(ctx context.Context, transactionId string) ([]models.TransitionEvent, error) {
	rows, err := s.pool.Query(ctx, queryListTransitionEvents, transactionId)
	if err != nil {
		return nil, fmt.Errorf("failed to list transition events: %w", err)
	}
	defer rows.Close()

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
	return events, rows.Err()
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var txType, state, amountStr string
	var providerRef *string

	err := row.Scan(&t.Id, &txType, &t.PlayerId, &t.Currency, &amountStr, &state, &providerRef,
		&t.IdempotencyKey, &t.Destination, &t.Reason, &t.PayoutAttempts, &t.PayoutClaim, &t.PayoutClaimedAt,
		&t.ReviewedBy, &t.ReviewedAt,
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
	if providerRef != nil {
		t.ProviderRef = *providerRef
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
	if w.Available, err = decimal.NewFromString(availableStr); err != nil {
		return nil, fmt.Errorf("failed to parse available '%s': %w", availableStr, err)
	}
	if w.Held, err = decimal.NewFromString(heldStr); err != nil {
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
