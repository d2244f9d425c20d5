package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

// operation identifies one deduplicated request.
type operation struct {
	action  string
	subject string
	key     string
	hash    string
}

func newOperation(action, subject, key string, payload any) (operation, error) {
	if key == "" {
		return operation{}, fmt.Errorf("%w: Idempotency-Key is required", store.ErrBadRequest)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return operation{}, fmt.Errorf("failed to hash request: %w", err)
	}
	sum := sha256.Sum256(append([]byte(action+"\n"+subject+"\n"), body...))
	return operation{action: action, subject: subject, key: key, hash: hex.EncodeToString(sum[:])}, nil
}

func (op operation) scope() string {
	return op.action + ":" + op.subject
}

func (op operation) fields() []zap.Field {
	return []zap.Field{zap.String("scope", op.scope()), zap.String("idempotency_key", op.key)}
}

// storedError is a failure replayed from an idempotency record.
type storedError struct {
	code    string
	message string
}

func (e *storedError) Error() string {
	return e.message
}

func (e *storedError) Unwrap() error {
	return store.ErrorForCode(e.code)
}

type replay struct {
	result Result
	err    error
}

// reserve claims op's key inside tx. It returns a replay when the key was
// already answered.
func (s *CashierService) reserve(ctx context.Context, tx store.Tx, op operation, now time.Time) (*replay, error) {
	rec, err := tx.GetIdempotencyRecord(ctx, op.scope(), op.key)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		inserted, err := tx.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
			Scope:       op.scope(),
			Key:         op.key,
			RequestHash: op.hash,
			Status:      models.IdempotencyInFlight,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return nil, err
		}
		if !inserted {
			return nil, fmt.Errorf("%w: %s", store.ErrRequestInFlight, op.key)
		}
		return nil, nil
	}

	if rep, err := answered(op, rec); err != nil || rep != nil {
		return rep, err
	}

	if now.Sub(rec.UpdatedAt) < s.lease {
		return nil, fmt.Errorf("%w: %s", store.ErrRequestInFlight, op.key)
	}

	zap.L().Warn("Taking over stale idempotency reservation", append(op.fields(), zap.Time("reserved_at", rec.UpdatedAt))...)
	rec.UpdatedAt = now
	if err := tx.UpdateIdempotencyRecord(ctx, rec); err != nil {
		return nil, err
	}
	return nil, nil
}

// answered returns the stored answer in rec, or nil while rec is in flight.
func answered(op operation, rec *models.IdempotencyRecord) (*replay, error) {
	if rec.RequestHash != op.hash {
		return nil, fmt.Errorf("%w: key %s was used for a different request", store.ErrIdempotencyKeyReuse, op.key)
	}

	switch rec.Status {
	case models.IdempotencyDone:
		var t models.TransactionRecord
		if err := json.Unmarshal(rec.Response, &t); err != nil {
			return nil, fmt.Errorf("failed to decode stored response: %w", err)
		}
		return &replay{result: Result{Transaction: t, Replayed: true}}, nil
	case models.IdempotencyFailed:
		return &replay{
			result: Result{Replayed: true},
			err:    &storedError{code: rec.ErrorCode, message: rec.ErrorMessage},
		}, nil
	}
	return nil, nil
}

// lookup returns op's stored answer, if any. Request checks run after it so
// that a replay does not depend on state that changed since the first call.
func (s *CashierService) lookup(ctx context.Context, op operation) (*replay, error) {
	var rep *replay
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.GetIdempotencyRecord(ctx, op.scope(), op.key)
		if err != nil || rec == nil {
			return err
		}
		rep, err = answered(op, rec)
		return err
	})
	return rep, err
}

// complete stores t as op's answer.
func complete(ctx context.Context, tx store.Tx, op operation, t *models.Transaction, now time.Time) (Result, error) {
	record := models.NewTransactionRecord(t)
	body, err := json.Marshal(record)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode response: %w", err)
	}
	err = tx.UpdateIdempotencyRecord(ctx, &models.IdempotencyRecord{
		Scope:         op.scope(),
		Key:           op.key,
		Status:        models.IdempotencyDone,
		TransactionId: t.Id,
		Response:      body,
		UpdatedAt:     now,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: record}, nil
}

// once runs fn and stores its answer under op in one store transaction.
// Business failures are stored after the rollback so that retries with the
// same key replay them.
func (s *CashierService) once(ctx context.Context, op operation, fn func(ctx context.Context, u *ledger.Unit) (*models.Transaction, error)) (Result, error) {
	var rep *replay
	var result Result
	var effectErr error

	err := s.machine.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		var err error
		if rep, err = s.reserve(ctx, u.Tx(), op, u.Now()); err != nil || rep != nil {
			return err
		}
		t, err := fn(ctx, u)
		if err != nil {
			effectErr = err
			return err
		}
		result, err = complete(ctx, u.Tx(), op, t, u.Now())
		return err
	})

	if rep != nil {
		return s.replayed(op, rep)
	}
	if err != nil {
		if effectErr != nil {
			s.recordFailure(ctx, op, effectErr)
		}
		return Result{}, err
	}
	return result, nil
}

func (s *CashierService) replayed(op operation, rep *replay) (Result, error) {
	status := models.IdempotencyDone
	if rep.err != nil {
		status = models.IdempotencyFailed
	}
	s.recorder.IdempotentReplay(op.action, status)
	zap.L().Info("Idempotent replay", append(op.fields(), zap.String("status", string(status)))...)
	return rep.result, rep.err
}

// recordFailure stores a business failure for op. Infrastructure failures
// are not stored; the key stays retryable.
func (s *CashierService) recordFailure(ctx context.Context, op operation, cause error) {
	if !store.IsBusiness(cause) {
		return
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		rec := &models.IdempotencyRecord{
			Scope:        op.scope(),
			Key:          op.key,
			RequestHash:  op.hash,
			Status:       models.IdempotencyFailed,
			ErrorCode:    store.Code(cause),
			ErrorMessage: cause.Error(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		existing, err := tx.GetIdempotencyRecord(ctx, op.scope(), op.key)
		if err != nil {
			return err
		}
		if existing == nil {
			_, err = tx.InsertIdempotencyRecord(ctx, rec)
			return err
		}
		if existing.RequestHash != op.hash || existing.Status != models.IdempotencyInFlight {
			return nil
		}
		return tx.UpdateIdempotencyRecord(ctx, rec)
	})
	if err != nil {
		zap.L().Error("Failed to record idempotent failure", append(op.fields(), zap.Error(err))...)
		return
	}
	zap.L().Info("Recorded failed request", append(op.fields(), zap.String("error_code", store.Code(cause)))...)
}

// release drops op's reservation so the same key can be retried.
func (s *CashierService) release(ctx context.Context, op operation) {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteIdempotencyRecord(ctx, op.scope(), op.key)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("Failed to release idempotency reservation", append(op.fields(), zap.Error(err))...)
	}
}
