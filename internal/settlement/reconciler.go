// Package settlement finalizes deposits and payouts from provider callbacks.
// Callbacks may arrive late, out of order or many times; each one is applied
// at most once.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Kind string

const (
	KindDeposit Kind = "deposit"
	KindPayout  Kind = "payout"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Result says what a callback did.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultDropped   Result = "dropped"
	ResultIgnored   Result = "ignored"
)

type Callback struct {
	ProviderRef string
	Outcome     Outcome
	Kind        Kind
	EventId     string
	// Amount is what the provider reports it moved; zero when not reported.
	Amount decimal.Decimal
}

func (c Callback) validate() error {
	if c.ProviderRef == "" {
		return fmt.Errorf("%w: provider_ref is required", store.ErrBadRequest)
	}
	switch c.Kind {
	case KindDeposit, KindPayout:
	default:
		return fmt.Errorf("%w: unknown callback kind %q", store.ErrBadRequest, c.Kind)
	}
	switch c.Outcome {
	case OutcomeSuccess, OutcomeFailure:
	default:
		return fmt.Errorf("%w: unknown callback outcome %q", store.ErrBadRequest, c.Outcome)
	}
	return nil
}

// Recorder receives one call per reconciled callback.
type Recorder interface {
	CallbackReconciled(kind Kind, result Result)
}

type Reconciler struct {
	machine  *ledger.Machine
	provider string
	recorder Recorder
}

func NewReconciler(m *ledger.Machine, provider string, recorder Recorder) *Reconciler {
	return &Reconciler{machine: m, provider: provider, recorder: recorder}
}

// Reconciled is the result and the affected transaction, if any.
type Reconciled struct {
	Result        Result
	TransactionId string
}

// OnProviderCallback applies cb. Unknown references and out-of-order callbacks
// are not errors; they return ResultDropped and ResultIgnored.
func (r *Reconciler) OnProviderCallback(ctx context.Context, cb Callback) (Reconciled, error) {
	if err := cb.validate(); err != nil {
		return Reconciled{}, err
	}

	var out Reconciled
	err := r.machine.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		t, err := u.Tx().GetTransactionByProviderRefForUpdate(ctx, cb.ProviderRef)
		if errors.Is(err, store.ErrNotFound) {
			out = Reconciled{Result: ResultDropped}
			return nil
		}
		if err != nil {
			return err
		}
		out.TransactionId = t.Id

		to, result := plan(t, cb)
		out.Result = result
		if result != ResultApplied {
			return nil
		}

		_, err = r.machine.Transition(ctx, u, ledger.Change{
			TransactionId:  t.Id,
			Expected:       t.State,
			To:             to,
			Actor:          models.Actor{Id: r.provider, Role: models.RoleProvider},
			Reason:         "provider callback " + string(cb.Outcome),
			IdempotencyKey: cb.EventId,
		})
		return err
	})
	if err != nil {
		zap.L().Error("Failed to reconcile provider callback",
			zap.String("provider_ref", cb.ProviderRef),
			zap.String("kind", string(cb.Kind)),
			zap.String("outcome", string(cb.Outcome)),
			zap.Error(err))
		return Reconciled{}, err
	}

	fields := []zap.Field{
		zap.String("provider_ref", cb.ProviderRef),
		zap.String("event_id", cb.EventId),
		zap.String("kind", string(cb.Kind)),
		zap.String("outcome", string(cb.Outcome)),
		zap.String("amount", cb.Amount.String()),
		zap.String("transaction_id", out.TransactionId),
		zap.String("result", string(out.Result)),
	}
	switch out.Result {
	case ResultApplied:
		zap.L().Info("Provider callback applied", fields...)
	case ResultDuplicate:
		zap.L().Info("Duplicate provider callback acknowledged", fields...)
	default:
		zap.L().Warn("Provider callback not applied", fields...)
	}

	if r.recorder != nil {
		r.recorder.CallbackReconciled(cb.Kind, out.Result)
	}
	return out, nil
}

// plan picks the transition for cb, or the no-op result when there is none.
func plan(t *models.Transaction, cb Callback) (lifecycle.State, Result) {
	switch cb.Kind {
	case KindDeposit:
		if t.Type != lifecycle.KindDeposit {
			return "", ResultIgnored
		}
		// a deposit is credited with its recorded amount, so the provider's must match
		if cb.Outcome == OutcomeSuccess && !cb.Amount.IsZero() && !cb.Amount.Equal(t.Amount) {
			return "", ResultIgnored
		}
		return decide(t.State, cb.Outcome, lifecycle.StatePending,
			lifecycle.StateSettled, []lifecycle.State{lifecycle.StateSettled},
			lifecycle.StateFailed, []lifecycle.State{lifecycle.StateFailed})
	case KindPayout:
		if t.Type != lifecycle.KindWithdrawal {
			return "", ResultIgnored
		}
		return decide(t.State, cb.Outcome, lifecycle.StatePayoutPending,
			lifecycle.StatePaid, []lifecycle.State{lifecycle.StatePaid},
			lifecycle.StatePayoutFailed, []lifecycle.State{lifecycle.StatePayoutFailed, lifecycle.StateRejected})
	}
	return "", ResultIgnored
}

// decide applies the callback from the awaiting state. A record already in a
// state the callback would have produced is a duplicate.
func decide(current lifecycle.State, outcome Outcome, awaiting lifecycle.State,
	success lifecycle.State, afterSuccess []lifecycle.State,
	failure lifecycle.State, afterFailure []lifecycle.State) (lifecycle.State, Result) {

	to, after := success, afterSuccess
	if outcome == OutcomeFailure {
		to, after = failure, afterFailure
	}
	if current == awaiting {
		return to, ResultApplied
	}
	for _, s := range after {
		if current == s {
			return "", ResultDuplicate
		}
	}
	return "", ResultIgnored
}
