package cashierclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cashier-settlement-go/internal/coordinator"
	"cashier-settlement-go/internal/models"

	"go.uber.org/zap"
)

// ErrPending is returned when an action's outcome is not yet known, either
// because the caller gave up waiting or because another call for the same
// action is still running. Calling again resumes under the same key.
var ErrPending = errors.New("action outcome pending")

const (
	actionDeposit    = "deposit"
	actionWithdraw   = "withdraw"
	actionApprove    = "approve"
	actionReject     = "reject"
	actionPayout     = "payout"
	actionRetry      = "retry_payout"
	actionMarkPaid   = "mark_paid"
	actionMarkFailed = "mark_failed"
)

// Cashier runs every mutation through the coordinator. The coordinator
// scope is the acting principal; the subject is the player for new
// transactions and the transaction for reviews and payouts.
type Cashier struct {
	client *Client
	coord  *coordinator.Coordinator
	actor  models.Actor
}

func NewCashier(client *Client, coord *coordinator.Coordinator, actor models.Actor) *Cashier {
	return &Cashier{client: client, coord: coord, actor: actor}
}

func (c *Cashier) Client() *Client {
	return c.client
}

func (c *Cashier) Deposit(ctx context.Context, req models.DepositRequest) (*Outcome, error) {
	return c.execute(ctx, req.PlayerId, actionDeposit, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.CreateDeposit(ctx, key, req)
	})
}

func (c *Cashier) Withdraw(ctx context.Context, req models.WithdrawalRequest) (*Outcome, error) {
	return c.execute(ctx, req.PlayerId, actionWithdraw, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.SubmitWithdrawal(ctx, key, req)
	})
}

func (c *Cashier) Approve(ctx context.Context, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.execute(ctx, id, actionApprove, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.Approve(ctx, key, id, req)
	})
}

func (c *Cashier) Reject(ctx context.Context, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.execute(ctx, id, actionReject, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.Reject(ctx, key, id, req)
	})
}

func (c *Cashier) StartPayout(ctx context.Context, id string) (*Outcome, error) {
	return c.execute(ctx, id, actionPayout, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.StartPayout(ctx, key, id)
	})
}

func (c *Cashier) RetryPayout(ctx context.Context, id string) (*Outcome, error) {
	return c.execute(ctx, id, actionRetry, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.RetryPayout(ctx, key, id)
	})
}

func (c *Cashier) MarkPaid(ctx context.Context, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.execute(ctx, id, actionMarkPaid, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.MarkPaid(ctx, key, id, req)
	})
}

func (c *Cashier) MarkFailed(ctx context.Context, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.execute(ctx, id, actionMarkFailed, func(ctx context.Context, key string) (*Outcome, error) {
		return c.client.MarkFailed(ctx, key, id, req)
	})
}

func (c *Cashier) execute(ctx context.Context, subjectId, action string, call func(ctx context.Context, key string) (*Outcome, error)) (*Outcome, error) {
	r := c.coord.Execute(ctx, c.actor.String(), subjectId, action, func(ctx context.Context, key string) (any, error) {
		return call(ctx, key)
	})
	return outcome(r)
}

func outcome(r coordinator.Result) (*Outcome, error) {
	switch r.Status {
	case coordinator.StatusDone:
		out, _ := r.Value.(*Outcome)
		if out != nil && out.Replayed {
			zap.L().Info("Server replayed recorded outcome",
				zap.String("idempotency_key", r.Key),
				zap.String("transaction_id", out.Transaction.Id))
		}
		return out, nil
	case coordinator.StatusFailed:
		return nil, r.Err
	default:
		if r.Err != nil {
			return nil, fmt.Errorf("%w (key %s): %w", ErrPending, r.Key, r.Err)
		}
		return nil, fmt.Errorf("%w (key %s)", ErrPending, r.Key)
	}
}

// AwaitState polls a transaction until it reaches one of states. Transient
// read failures are polled through; other errors stop the wait.
func (c *Cashier) AwaitState(ctx context.Context, id string, cfg coordinator.PollConfig, states ...string) (*models.TransactionDetail, error) {
	var last *models.TransactionDetail
	err := coordinator.Poll(ctx, cfg, func(ctx context.Context) (bool, error) {
		detail, err := c.client.GetTransaction(ctx, id)
		if err != nil {
			if coordinator.IsRetryable(err) {
				zap.L().Debug("Transient error while polling", zap.String("transaction_id", id), zap.Error(err))
				return false, nil
			}
			return false, err
		}
		last = detail
		return slices.Contains(states, detail.State), nil
	})
	if err != nil {
		return last, err
	}
	return last, nil
}

// DefaultPollConfig backs off from 500ms to 5s over at most 30 checks.
func DefaultPollConfig() coordinator.PollConfig {
	return coordinator.PollConfig{
		Interval:    500 * time.Millisecond,
		MaxInterval: 5 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 30,
	}
}
