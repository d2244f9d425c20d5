package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"
)

// sqliteTx implements store.Tx. The connection was opened with
// _txlock=immediate, so the write lock is already held and plain SELECTs
// read rows nobody else can change until commit.
type sqliteTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*sqliteTx)(nil)

func (t *sqliteTx) GetWalletForUpdate(ctx context.Context, key models.WalletKey) (*models.Wallet, error) {
	if _, err := t.tx.ExecContext(ctx, queryInsertWalletIfMissing, key.PlayerId, key.Currency, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	w, err := scanWallet(t.tx.QueryRowContext(ctx, queryGetWallet, key.PlayerId, key.Currency))
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (t *sqliteTx) UpdateWallet(ctx context.Context, w *models.Wallet) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateWallet,
		w.Available.String(), w.Held.String(), w.UpdatedAt, w.PlayerId, w.Currency, w.Version)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet update failed - %w", store.ErrConcurrentModification)
	}
	w.Version++
	return nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	_, err := t.tx.ExecContext(ctx, queryInsertTransaction,
		tr.Id, string(tr.Type), tr.PlayerId, tr.Currency, tr.Amount.String(), string(tr.State),
		nullString(tr.ProviderRef), tr.IdempotencyKey, tr.Destination, tr.Reason, tr.PayoutAttempts,
		tr.PayoutClaim, nullTime(tr.PayoutClaimedAt), tr.ReviewedBy, nullTime(tr.ReviewedAt), tr.CreatedAt, tr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: provider_ref %s already exists", store.ErrDuplicateTransaction, tr.ProviderRef)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetTransactionForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx, queryGetTransaction, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tr, nil
}

func (t *sqliteTx) GetTransactionByProviderRefForUpdate(ctx context.Context, providerRef string) (*models.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx, queryGetTransactionByProviderRef, providerRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: provider_ref %s", store.ErrNotFound, providerRef)
		}
		return nil, fmt.Errorf("failed to get transaction by provider ref: %w", err)
	}
	return tr, nil
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tr *models.Transaction, expected lifecycle.State) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateTransaction,
		string(tr.State), nullString(tr.ProviderRef), tr.Reason, tr.PayoutAttempts,
		tr.PayoutClaim, nullTime(tr.PayoutClaimedAt), tr.ReviewedBy, nullTime(tr.ReviewedAt), tr.UpdatedAt, tr.Id, string(expected))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: provider_ref %s already exists", store.ErrDuplicateTransaction, tr.ProviderRef)
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s is no longer %s", store.ErrInvalidStateTransition, tr.Id, expected)
	}
	return nil
}

func (t *sqliteTx) InsertTransitionEvent(ctx context.Context, e *models.TransitionEvent) error {
	_, err := t.tx.ExecContext(ctx, queryInsertTransitionEvent,
		e.Id, e.TransactionId, string(e.FromState), string(e.ToState), e.ActorId, e.ActorRole,
		e.Reason, e.IdempotencyKey, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transition event: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertJournalEntries(ctx context.Context, entries []models.JournalEntry) error {
	for _, entry := range entries {
		_, err := t.tx.ExecContext(ctx, queryInsertJournalEntry,
			entry.Id, entry.TransactionId, entry.Event, entry.Account, entry.Currency,
			entry.Debit.String(), entry.Credit.String(), entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) GetIdempotencyRecord(ctx context.Context, scope, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	var status string
	err := t.tx.QueryRowContext(ctx, queryGetIdempotencyRecord, scope, key).Scan(
		&rec.Scope, &rec.Key, &rec.RequestHash, &status, &rec.TransactionId, &rec.Response,
		&rec.ErrorCode, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	rec.Status = models.IdempotencyStatus(status)
	return &rec, nil
}

func (t *sqliteTx) InsertIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	result, err := t.tx.ExecContext(ctx, queryInsertIdempotencyRecord,
		rec.Scope, rec.Key, rec.RequestHash, string(rec.Status), rec.TransactionId, rec.Response,
		rec.ErrorCode, rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (t *sqliteTx) UpdateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error {
	_, err := t.tx.ExecContext(ctx, queryUpdateIdempotencyRecord,
		string(rec.Status), rec.TransactionId, rec.Response, rec.ErrorCode, rec.ErrorMessage, rec.UpdatedAt,
		rec.Scope, rec.Key)
	if err != nil {
		return fmt.Errorf("failed to update idempotency record: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteIdempotencyRecord(ctx context.Context, scope, key string) error {
	if _, err := t.tx.ExecContext(ctx, queryDeleteIdempotencyRecord, scope, key); err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
