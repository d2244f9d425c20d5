package ledger

import (
	"context"
	"fmt"
	"time"

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

// DefaultClaimLease is how long a payout claim blocks other callers before it
// can be taken over.
const DefaultClaimLease = 2 * time.Minute

// PayoutClaim asks to become the only sender of a withdrawal's next payout.
type PayoutClaim struct {
	TransactionId string
	From          lifecycle.State
	Key           string
}

// ClaimPayout locks the record, checks that it can move from c.From to
// payout_pending and marks it as being sent. While the claim is held every
// other claim and every transition without the claim key fails with
// ErrInvalidStateTransition.
//
// A released or expired claim is taken over with its original key, so the
// provider sees the same idempotency key for the same payout attempt. The
// returned record's PayoutClaim is the key to send to the provider.
func (m *Machine) ClaimPayout(ctx context.Context, u *Unit, c PayoutClaim) (*models.Transaction, error) {
	t, err := u.tx.GetTransactionForUpdate(ctx, c.TransactionId)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", c.TransactionId, err)
	}
	if _, ok := lifecycle.Lookup(t.Type, c.From, lifecycle.StatePayoutPending); !ok {
		return nil, fmt.Errorf("%w: %s %s -> %s is not allowed", store.ErrInvalidStateTransition, t.Type, c.From, lifecycle.StatePayoutPending)
	}
	if t.State != c.From {
		return nil, fmt.Errorf("%w: %s is %s, payout needs %s", store.ErrInvalidStateTransition, t.Id, t.State, c.From)
	}
	if m.claimHeld(t, u.now) && t.PayoutClaim != c.Key {
		return nil, fmt.Errorf("%w: payout of %s is already being sent", store.ErrInvalidStateTransition, t.Id)
	}

	if t.PayoutClaim == "" {
		t.PayoutClaim = c.Key
	} else if t.PayoutClaim != c.Key {
		zap.L().Warn("Taking over payout claim",
			zap.String("transaction_id", t.Id),
			zap.String("claim", t.PayoutClaim),
			zap.String("idempotency_key", c.Key))
	}
	claimedAt := u.now
	t.PayoutClaimedAt = &claimedAt
	t.UpdatedAt = u.now

	if err := u.tx.UpdateTransaction(ctx, t, t.State); err != nil {
		return nil, fmt.Errorf("failed to claim payout of %s: %w", t.Id, err)
	}
	return t, nil
}

// ReleasePayout lets go of a claim taken with key. With forget the key is
// dropped too and the next claim starts a new payout attempt; without it the
// next claim resends under the same key. A claim that is no longer key's is
// left alone.
func (m *Machine) ReleasePayout(ctx context.Context, u *Unit, transactionId, key string, forget bool) error {
	t, err := u.tx.GetTransactionForUpdate(ctx, transactionId)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", transactionId, err)
	}
	if t.PayoutClaim != key || t.PayoutClaimedAt == nil {
		return nil
	}

	t.PayoutClaimedAt = nil
	if forget {
		t.PayoutClaim = ""
	}
	t.UpdatedAt = u.now
	if err := u.tx.UpdateTransaction(ctx, t, t.State); err != nil {
		return fmt.Errorf("failed to release payout claim of %s: %w", t.Id, err)
	}
	return nil
}

func (m *Machine) claimHeld(t *models.Transaction, now time.Time) bool {
	return t.PayoutClaim != "" && t.PayoutClaimedAt != nil && now.Sub(*t.PayoutClaimedAt) < m.claimLease
}
