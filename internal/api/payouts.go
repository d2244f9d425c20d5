package api

import (
	"context"
	"errors"
	"fmt"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

const (
	actionWithdrawalPayout = "withdrawal.payout"
	actionWithdrawalRetry  = "withdrawal.retry"
)

// StartPayout sends an approved withdrawal to the payout provider.
func (s *CashierService) StartPayout(ctx context.Context, key, transactionId string) (Result, error) {
	return s.payout(ctx, actionWithdrawalPayout, key, transactionId, lifecycle.StateApproved)
}

// RetryPayout sends a failed payout again. There is no attempt limit.
func (s *CashierService) RetryPayout(ctx context.Context, key, transactionId string) (Result, error) {
	return s.payout(ctx, actionWithdrawalRetry, key, transactionId, lifecycle.StatePayoutFailed)
}

// payout reserves the key and claims the record, calls the provider outside
// any store transaction, then records payout_pending with the provider
// reference. The claim keeps every other payout, retry and review off the
// record until this call finishes or the claim lease runs out.
func (s *CashierService) payout(ctx context.Context, action, key, transactionId string, from lifecycle.State) (Result, error) {
	actor, err := requireRole(ctx, models.RoleFinance)
	if err != nil {
		return Result{}, err
	}
	op, err := newOperation(action, transactionId, key, struct {
		From lifecycle.State `json:"from"`
	}{from})
	if err != nil {
		return Result{}, err
	}

	var rep *replay
	var t *models.Transaction
	var effectErr error
	err = s.machine.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		var err error
		if rep, err = s.reserve(ctx, u.Tx(), op, u.Now()); err != nil || rep != nil {
			return err
		}
		t, err = s.machine.ClaimPayout(ctx, u, ledger.PayoutClaim{TransactionId: transactionId, From: from, Key: op.key})
		if err != nil {
			effectErr = err
		}
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
	claim := t.PayoutClaim

	payout, err := s.provider.InitiatePayout(ctx, models.PayoutInstruction{
		TransactionId:  t.Id,
		PlayerId:       t.PlayerId,
		Currency:       t.Currency,
		Amount:         t.Amount,
		Destination:    t.Destination,
		IdempotencyKey: claim,
	})
	s.recorder.PayoutInitiated(s.provider.Name(), store.Code(err))
	if err != nil {
		if store.IsBusiness(err) {
			s.releaseClaim(ctx, op, t.Id, claim, true)
			s.recordFailure(ctx, op, err)
			return Result{}, err
		}
		// the provider may have accepted it, so the claim key is kept
		s.releaseClaim(ctx, op, t.Id, claim, false)
		s.release(ctx, op)
		if !errors.Is(err, store.ErrProviderTransient) {
			err = fmt.Errorf("%w: %v", store.ErrProviderTransient, err)
		}
		zap.L().Warn("Payout initiation failed, key released for retry",
			append(op.fields(), zap.String("transaction_id", t.Id), zap.Error(err))...)
		return Result{}, err
	}

	var result Result
	effectErr = nil
	err = s.machine.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		updated, err := s.machine.Transition(ctx, u, ledger.Change{
			TransactionId:  t.Id,
			Expected:       from,
			To:             lifecycle.StatePayoutPending,
			Actor:          actor,
			ProviderRef:    payout.ProviderRef,
			IdempotencyKey: op.key,
			ClaimKey:       claim,
		})
		if err != nil {
			effectErr = err
			return err
		}
		result, err = complete(ctx, u.Tx(), op, updated, u.Now())
		return err
	})
	if err != nil {
		zap.L().Error("Payout initiated but transaction could not be updated",
			append(op.fields(),
				zap.String("transaction_id", t.Id),
				zap.String("provider", payout.Provider),
				zap.String("provider_ref", payout.ProviderRef),
				zap.Error(err))...)
		if effectErr != nil {
			s.recordFailure(ctx, op, effectErr)
		}
		return Result{}, err
	}

	zap.L().Info("Payout initiated",
		append(op.fields(),
			zap.String("transaction_id", t.Id),
			zap.String("provider", payout.Provider),
			zap.String("provider_ref", payout.ProviderRef),
			zap.Int("payout_attempts", result.Transaction.PayoutAttempts))...)
	return result, nil
}

func (s *CashierService) releaseClaim(ctx context.Context, op operation, transactionId, claim string, forget bool) {
	err := s.machine.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		return s.machine.ReleasePayout(ctx, u, transactionId, claim, forget)
	})
	if err != nil {
		zap.L().Error("Failed to release payout claim",
			append(op.fields(), zap.String("transaction_id", transactionId), zap.Error(err))...)
	}
}
