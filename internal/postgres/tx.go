package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/jackc/pgx/v5"
)

type pgTx struct {
	tx pgx.Tx
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) GetWalletForUpdate(ctx context.Context, key models.WalletKey) (*models.Wallet, error) {
	if _, err := t.tx.Exec(ctx, queryInsertWalletIfMissing, key.PlayerId, key.Currency, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	w, err := scanWallet(t.tx.QueryRow(ctx, queryGetWalletForUpdate, key.PlayerId, key.Currency))
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return w, nil
}

func (t *pgTx) UpdateWallet(ctx context.Context, w *models.Wallet) error {
	tag, err := t.tx.Exec(ctx, queryUpdateWallet,
		w.Available.String(), w.Held.String(), w.UpdatedAt, w.PlayerId, w.Currency, w.Version)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet update failed - %w", store.ErrConcurrentModification)
	}
	w.Version++
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	_, err := t.tx.Exec(ctx, queryInsertTransaction,
		tr.Id, string(tr.Type), tr.PlayerId, tr.Currency, tr.Amount.String(), string(tr.State),
		nullableString(tr.ProviderRef), tr.IdempotencyKey, tr.Destination, tr.Reason, tr.PayoutAttempts,
		tr.PayoutClaim, tr.PayoutClaimedAt, tr.ReviewedBy, tr.ReviewedAt, tr.CreatedAt, tr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: provider_ref %s already exists", store.ErrDuplicateTransaction, tr.ProviderRef)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (t *pgTx) GetTransactionForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx, queryGetTransactionForUpdate, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	return tr, nil
}

func (t *pgTx) GetTransactionByProviderRefForUpdate(ctx context.Context, providerRef string) (*models.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx, queryGetTransactionByProviderRefForUpdate, providerRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: provider_ref %s", store.ErrNotFound, providerRef)
		}
		return nil, fmt.Errorf("failed to lock transaction by provider ref: %w", err)
	}
	return tr, nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, tr *models.Transaction, expected lifecycle.State) error {
	tag, err := t.tx.Exec(ctx, queryUpdateTransaction,
		string(tr.State), nullableString(tr.ProviderRef), tr.Reason, tr.PayoutAttempts,
		tr.PayoutClaim, tr.PayoutClaimedAt, tr.ReviewedBy, tr.ReviewedAt, tr.UpdatedAt, tr.Id, string(expected))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: provider_ref %s already exists", store.ErrDuplicateTransaction, tr.ProviderRef)
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s is no longer %s", store.ErrInvalidStateTransition, tr.Id, expected)
	}
	return nil
}

func (t *pgTx) InsertTransitionEvent(ctx context.Context, e *models.TransitionEvent) error {
	_, err := t.tx.Exec(ctx, queryInsertTransitionEvent,
		e.Id, e.TransactionId, string(e.FromState), string(e.ToState), e.ActorId, e.ActorRole,
		e.Reason, e.IdempotencyKey, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transition event: %w", err)
	}
	return nil
}

func (t *pgTx) InsertJournalEntries(ctx context.Context, entries []models.JournalEntry) error {
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(queryInsertJournalEntry,
			entry.Id, entry.TransactionId, entry.Event, entry.Account, entry.Currency,
			entry.Debit.String(), entry.Credit.String(), entry.CreatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert journal entries: %w", err)
	}
	return nil
}

func (t *pgTx) GetIdempotencyRecord(ctx context.Context, scope, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	var status string
	err := t.tx.QueryRow(ctx, queryGetIdempotencyRecord, scope, key).Scan(
		&rec.Scope, &rec.Key, &rec.RequestHash, &status, &rec.TransactionId, &rec.Response,
		&rec.ErrorCode, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	rec.Status = models.IdempotencyStatus(status)
	return &rec, nil
}

func (t *pgTx) InsertIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	tag, err := t.tx.Exec(ctx, queryInsertIdempotencyRecord,
		rec.Scope, rec.Key, rec.RequestHash, string(rec.Status), rec.TransactionId, rec.Response,
		rec.ErrorCode, rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) UpdateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error {
	_, err := t.tx.Exec(ctx, queryUpdateIdempotencyRecord,
		string(rec.Status), rec.TransactionId, rec.Response, rec.ErrorCode, rec.ErrorMessage, rec.UpdatedAt,
		rec.Scope, rec.Key)
	if err != nil {
		return fmt.Errorf("failed to update idempotency record: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteIdempotencyRecord(ctx context.Context, scope, key string) error {
	if _, err := t.tx.Exec(ctx, queryDeleteIdempotencyRecord, scope, key); err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
