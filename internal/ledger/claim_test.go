package ledger_test

import (
	"context"
	"testing"
	"time"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claim(m *ledger.Machine, id string, from lifecycle.State, key string) (*models.Transaction, error) {
	var tr *models.Transaction
	err := m.Atomically(context.Background(), func(ctx context.Context, u *ledger.Unit) error {
		var err error
		tr, err = m.ClaimPayout(ctx, u, ledger.PayoutClaim{TransactionId: id, From: from, Key: key})
		return err
	})
	return tr, err
}

func release(t *testing.T, m *ledger.Machine, id, key string, forget bool) {
	t.Helper()
	require.NoError(t, m.Atomically(context.Background(), func(ctx context.Context, u *ledger.Unit) error {
		return m.ReleasePayout(ctx, u, id, key, forget)
	}))
}

func approved(t *testing.T, m *ledger.Machine) *models.Transaction {
	t.Helper()
	deposit(t, m, "100")
	w := submit(t, m, "50")
	w, err := transition(m, ledger.Change{TransactionId: w.Id, To: lifecycle.StateApproved, Actor: reviewer, Reason: "ok"})
	require.NoError(t, err)
	return w
}

func TestClaimPayout_BlocksOtherCallers(t *testing.T) {
	st := newTestStore(t)
	m := ledger.NewMachine(st)
	w := approved(t, m)

	tr, err := claim(m, w.Id, lifecycle.StateApproved, "po-a")
	require.NoError(t, err)
	assert.Equal(t, "po-a", tr.PayoutClaim)
	assert.NotNil(t, tr.PayoutClaimedAt)

	_, err = claim(m, w.Id, lifecycle.StateApproved, "po-b")
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)

	_, err = transition(m, ledger.Change{TransactionId: w.Id, To: lifecycle.StatePayoutPending, Actor: finance, ProviderRef: "ref-b"})
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)

	// the holder may claim again
	_, err = claim(m, w.Id, lifecycle.StateApproved, "po-a")
	require.NoError(t, err)

	tr, err = transition(m, ledger.Change{TransactionId: w.Id, To: lifecycle.StatePayoutPending, Actor: finance, ProviderRef: "ref-a", ClaimKey: "po-a"})
	require.NoError(t, err)
	assert.Empty(t, tr.PayoutClaim)
	assert.Nil(t, tr.PayoutClaimedAt)
	assert.Equal(t, 1, tr.PayoutAttempts)
}

func TestClaimPayout_BlocksRejectDuringRetry(t *testing.T) {
	st := newTestStore(t)
	m := ledger.NewMachine(st)
	w := approved(t, m)

	_, err := transition(m, ledger.Change{TransactionId: w.Id, To: lifecycle.StatePayoutPending, Actor: finance, ProviderRef: "ref-1"})
	require.NoError(t, err)
	_, err = transition(m, ledger.Change{TransactionId: w.Id, To: lifecycle.StatePayoutFailed, Actor: finance, Reason: "bounced"})
	require.NoError(t, err)

	_, err = claim(m, w.Id, lifecycle.StatePayoutFailed, "retry-1")
	require.NoError(t, err)

	_, err = transition(m, ledger.Change{TransactionId: w.Id, To: lifecycle.StateRejected, Actor: reviewer, Reason: "give up"})
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)
	assert.True(t, wallet(t, st).Held.Equal(dec("50")), "hold must stay while the payout is being sent")

	release(t, m, w.Id, "retry-1", true)
	tr, err := transition(m, ledger.Change{TransactionId: w.Id, To: lifecycle.StateRejected, Actor: reviewer, Reason: "give up"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateRejected, tr.State)
	assert.True(t, wallet(t, st).Held.IsZero())
}

func TestClaimPayout_ReleaseKeepsProviderKey(t *testing.T) {
	st := newTestStore(t)
	m := ledger.NewMachine(st)
	w := approved(t, m)

	_, err := claim(m, w.Id, lifecycle.StateApproved, "po-a")
	require.NoError(t, err)
	release(t, m, w.Id, "po-a", false)

	// a released claim is resent under its original key
	tr, err := claim(m, w.Id, lifecycle.StateApproved, "po-b")
	require.NoError(t, err)
	assert.Equal(t, "po-a", tr.PayoutClaim)

	release(t, m, w.Id, "po-a", true)
	tr, err = claim(m, w.Id, lifecycle.StateApproved, "po-c")
	require.NoError(t, err)
	assert.Equal(t, "po-c", tr.PayoutClaim)
}

func TestClaimPayout_ExpiredClaimIsTakenOver(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	m := ledger.NewMachine(st, ledger.WithClaimLease(time.Minute), ledger.WithClock(func() time.Time { return now }))
	w := approved(t, m)

	_, err := claim(m, w.Id, lifecycle.StateApproved, "po-a")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = claim(m, w.Id, lifecycle.StateApproved, "po-b")
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)

	now = now.Add(time.Minute)
	tr, err := claim(m, w.Id, lifecycle.StateApproved, "po-b")
	require.NoError(t, err)
	assert.Equal(t, "po-a", tr.PayoutClaim)
}

func TestClaimPayout_WrongState(t *testing.T) {
	st := newTestStore(t)
	m := ledger.NewMachine(st)
	deposit(t, m, "100")
	w := submit(t, m, "50")

	_, err := claim(m, w.Id, lifecycle.StateApproved, "po-a")
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)

	_, err = claim(m, w.Id, lifecycle.StateRequested, "po-a")
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)
}
