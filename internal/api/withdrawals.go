package api

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

const (
	actionWithdrawalSubmit     = "withdrawal.submit"
	actionWithdrawalApprove    = "withdrawal.approve"
	actionWithdrawalReject     = "withdrawal.reject"
	actionWithdrawalMarkPaid   = "withdrawal.mark_paid"
	actionWithdrawalMarkFailed = "withdrawal.mark_failed"
)

// SubmitWithdrawal places the hold and records the withdrawal as requested.
// A key that was already answered replays its answer before any check runs.
func (s *CashierService) SubmitWithdrawal(ctx context.Context, key string, req models.WithdrawalRequest) (Result, error) {
	actor, err := requirePlayer(ctx, req.PlayerId)
	if err != nil {
		return Result{}, err
	}
	op, err := newOperation(actionWithdrawalSubmit, req.PlayerId, key, req)
	if err != nil {
		return Result{}, err
	}
	if rep, err := s.lookup(ctx, op); err != nil {
		return Result{}, err
	} else if rep != nil {
		return s.replayed(op, rep)
	}

	c, err := s.currency(req.Currency)
	if err != nil {
		return Result{}, err
	}
	if err := validateAmount(c, req.Amount); err != nil {
		return Result{}, err
	}
	if min := c.MinWithdrawalAmount(); req.Amount.LessThan(min) {
		return Result{}, fmt.Errorf("%w: minimum %s withdrawal is %s", store.ErrInvalidAmount, c.Symbol, min.String())
	}
	if req.Destination == "" {
		return Result{}, fmt.Errorf("%w: destination is required", store.ErrBadRequest)
	}
	if _, err := s.eligiblePlayer(ctx, req.PlayerId, true); err != nil {
		return Result{}, err
	}

	zap.L().Info("Submitting withdrawal",
		zap.String("player_id", req.PlayerId),
		zap.String("currency", c.Symbol),
		zap.String("amount", req.Amount.String()),
		zap.String("idempotency_key", key))

	return s.once(ctx, op, func(ctx context.Context, u *ledger.Unit) (*models.Transaction, error) {
		return s.machine.SubmitWithdrawal(ctx, u, ledger.NewWithdrawal{
			PlayerId:       req.PlayerId,
			Currency:       c.Symbol,
			Amount:         req.Amount,
			Destination:    req.Destination,
			IdempotencyKey: key,
			Actor:          actor,
		})
	})
}

// Approve moves a requested withdrawal to approved.
func (s *CashierService) Approve(ctx context.Context, key, transactionId string, req models.TransitionRequest) (Result, error) {
	return s.review(ctx, actionWithdrawalApprove, key, transactionId, lifecycle.StateRequested, lifecycle.StateApproved, req,
		models.RoleReviewer)
}

// Reject returns the held funds of a requested or failed withdrawal.
func (s *CashierService) Reject(ctx context.Context, key, transactionId string, req models.TransitionRequest) (Result, error) {
	return s.review(ctx, actionWithdrawalReject, key, transactionId, "", lifecycle.StateRejected, req,
		models.RoleReviewer, models.RoleFinance)
}

// MarkPaid settles a pending payout by hand.
func (s *CashierService) MarkPaid(ctx context.Context, key, transactionId string, req models.TransitionRequest) (Result, error) {
	return s.review(ctx, actionWithdrawalMarkPaid, key, transactionId, lifecycle.StatePayoutPending, lifecycle.StatePaid, req,
		models.RoleFinance)
}

// MarkFailed records a pending payout as failed by hand. Funds stay held.
func (s *CashierService) MarkFailed(ctx context.Context, key, transactionId string, req models.TransitionRequest) (Result, error) {
	return s.review(ctx, actionWithdrawalMarkFailed, key, transactionId, lifecycle.StatePayoutPending, lifecycle.StatePayoutFailed, req,
		models.RoleFinance)
}

// review runs one operator transition. from is the default expected state;
// empty means the state read under lock.
func (s *CashierService) review(ctx context.Context, action, key, transactionId string, from, to lifecycle.State,
	req models.TransitionRequest, roles ...models.Role) (Result, error) {

	actor, err := requireRole(ctx, roles...)
	if err != nil {
		return Result{}, err
	}
	expected, err := expectedState(req, from)
	if err != nil {
		return Result{}, err
	}

	op, err := newOperation(action, transactionId, key, req)
	if err != nil {
		return Result{}, err
	}

	return s.once(ctx, op, func(ctx context.Context, u *ledger.Unit) (*models.Transaction, error) {
		return s.machine.Transition(ctx, u, ledger.Change{
			TransactionId:  transactionId,
			Expected:       expected,
			To:             to,
			Actor:          actor,
			Reason:         req.Reason,
			IdempotencyKey: key,
		})
	})
}

func expectedState(req models.TransitionRequest, fallback lifecycle.State) (lifecycle.State, error) {
	if req.ExpectedState == "" {
		return fallback, nil
	}
	s, err := lifecycle.ParseState(req.ExpectedState)
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrBadRequest, err)
	}
	return s, nil
}
