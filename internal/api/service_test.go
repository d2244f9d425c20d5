package api

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"cashier-settlement-go/internal/database"
	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/sandbox"
	"cashier-settlement-go/internal/settlement"
	"cashier-settlement-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	player   = models.Actor{Id: "player-1", Role: models.RolePlayer}
	other    = models.Actor{Id: "player-2", Role: models.RolePlayer}
	reviewer = models.Actor{Id: "reviewer-1", Role: models.RoleReviewer}
	finance  = models.Actor{Id: "finance-1", Role: models.RoleFinance}
	admin    = models.Actor{Id: "admin-1", Role: models.RoleAdmin}
)

type fixture struct {
	svc      *CashierService
	store    *database.Service
	provider *sandbox.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith sends payouts through wrap(sandbox) when wrap is set.
func newFixtureWith(t *testing.T, wrap func(*sandbox.Provider) ledger.PayoutProvider) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := database.NewServiceFromDB(db)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = st.CreatePlayer(ctx, store.CreatePlayerParams{Id: player.Id, Name: "One", Email: "one@example.com", KycStatus: models.KycApproved})
	require.NoError(t, err)
	_, err = st.CreatePlayer(ctx, store.CreatePlayerParams{Id: other.Id, Name: "Two", Email: "two@example.com"})
	require.NoError(t, err)

	m := ledger.NewMachine(st)
	provider := sandbox.New()
	var payouts ledger.PayoutProvider = provider
	if wrap != nil {
		payouts = wrap(provider)
	}
	svc, err := NewCashierService(Params{
		Machine:    m,
		Provider:   payouts,
		Reconciler: settlement.NewReconciler(m, provider.Name(), nil),
		Currencies: []models.Currency{
			{Symbol: "USD", Precision: 2, MinWithdrawal: "10"},
			{Symbol: "BTC", Precision: 8},
		},
		InFlightLease: time.Minute,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: st, provider: provider}
}

func as(a models.Actor) context.Context {
	return models.WithActor(context.Background(), a)
}

func usd(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// fund deposits amount and settles it through a provider webhook.
func (f *fixture) fund(t *testing.T, key, amount string) {
	t.Helper()
	res, err := f.svc.CreateDeposit(as(player), key, models.DepositRequest{PlayerId: player.Id, Currency: "USD", Amount: usd(amount)})
	require.NoError(t, err)
	ack, err := f.svc.HandleProviderEvent(context.Background(), models.ProviderEvent{
		ProviderRef: res.Transaction.ProviderRef, Kind: "deposit", Outcome: "success",
	})
	require.NoError(t, err)
	require.Equal(t, string(settlement.ResultApplied), ack.Result)
}

func (f *fixture) balance(t *testing.T) models.BalanceView {
	t.Helper()
	b, err := f.svc.GetBalance(as(player), player.Id, "USD")
	require.NoError(t, err)
	return b
}

func (f *fixture) withdraw(t *testing.T, key, amount string) models.TransactionRecord {
	t.Helper()
	res, err := f.svc.SubmitWithdrawal(as(player), key, models.WithdrawalRequest{
		PlayerId: player.Id, Currency: "USD", Amount: usd(amount), Destination: "acct-1",
	})
	require.NoError(t, err)
	return res.Transaction
}

func TestSmokeScenario(t *testing.T) {
	f := newFixture(t)
	bg := context.Background()

	f.fund(t, "dep-1", "100")
	assert.True(t, f.balance(t).Available.Equal(usd("100")))

	w := f.withdraw(t, "wd-1", "50")
	assert.Equal(t, string(lifecycle.StateRequested), w.State)
	b := f.balance(t)
	assert.True(t, b.Available.Equal(usd("50")))
	assert.True(t, b.Held.Equal(usd("50")))

	_, err := f.svc.Approve(as(reviewer), "ap-1", w.Id, models.TransitionRequest{Reason: "kyc ok"})
	require.NoError(t, err)

	// transient provider error, same key succeeds
	f.provider.FailNext(store.ErrProviderTransient)
	_, err = f.svc.StartPayout(as(finance), "po-1", w.Id)
	require.ErrorIs(t, err, store.ErrProviderTransient)
	res, err := f.svc.StartPayout(as(finance), "po-1", w.Id)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatePayoutPending), res.Transaction.State)
	firstRef := res.Transaction.ProviderRef

	// provider reports failure, funds stay held
	ack, err := f.svc.HandleProviderEvent(bg, models.ProviderEvent{ProviderRef: firstRef, Kind: "payout", Outcome: "failure"})
	require.NoError(t, err)
	assert.Equal(t, string(settlement.ResultApplied), ack.Result)
	assert.True(t, f.balance(t).Held.Equal(usd("50")))

	res, err = f.svc.RetryPayout(as(finance), "po-2", w.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Transaction.PayoutAttempts)
	assert.NotEqual(t, firstRef, res.Transaction.ProviderRef)

	for i := 0; i < 3; i++ {
		_, err = f.svc.HandleProviderEvent(bg, models.ProviderEvent{ProviderRef: res.Transaction.ProviderRef, Kind: "payout", Outcome: "success"})
		require.NoError(t, err)
	}

	b = f.balance(t)
	assert.True(t, b.Available.Equal(usd("50")), b.Available.String())
	assert.True(t, b.Held.IsZero(), b.Held.String())
	assert.True(t, b.Total.Equal(usd("50")))

	detail, err := f.svc.GetTransaction(as(player), w.Id)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatePaid), detail.State)
	var path []string
	for _, e := range detail.Events {
		path = append(path, e.To)
	}
	assert.Equal(t, []string{"requested", "approved", "payout_pending", "payout_failed", "payout_pending", "paid"}, path)

	require.NoError(t, f.store.ReconcileWallet(bg, models.WalletKey{PlayerId: player.Id, Currency: "USD"}))
}

func TestSubmitReplaysSameKey(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")

	req := models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("30"), Destination: "acct-1"}
	first, err := f.svc.SubmitWithdrawal(as(player), "wd-1", req)
	require.NoError(t, err)
	second, err := f.svc.SubmitWithdrawal(as(player), "wd-1", req)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.Id, second.Transaction.Id)
	assert.True(t, f.balance(t).Held.Equal(usd("30")))
}

func TestKeyReuseWithDifferentPayload(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	f.withdraw(t, "wd-1", "30")

	_, err := f.svc.SubmitWithdrawal(as(player), "wd-1", models.WithdrawalRequest{
		PlayerId: player.Id, Currency: "USD", Amount: usd("31"), Destination: "acct-1",
	})
	assert.ErrorIs(t, err, store.ErrIdempotencyKeyReuse)
	assert.True(t, f.balance(t).Held.Equal(usd("30")))
}

func TestBusinessFailureIsReplayed(t *testing.T) {
	f := newFixture(t)
	req := models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("30"), Destination: "acct-1"}

	_, err := f.svc.SubmitWithdrawal(as(player), "wd-1", req)
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	// funds arriving later do not change the answer for the same key
	f.fund(t, "dep-1", "100")
	res, err := f.svc.SubmitWithdrawal(as(player), "wd-1", req)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.True(t, res.Replayed)
	assert.True(t, f.balance(t).Held.IsZero())

	_, err = f.svc.SubmitWithdrawal(as(player), "wd-2", req)
	assert.NoError(t, err)
}

func TestReplayIgnoresChangedEligibility(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	req := models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("30"), Destination: "acct-1"}
	first, err := f.svc.SubmitWithdrawal(as(player), "wd-1", req)
	require.NoError(t, err)

	require.NoError(t, f.store.SetKycStatus(context.Background(), player.Id, models.KycRejected))

	second, err := f.svc.SubmitWithdrawal(as(player), "wd-1", req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.Id, second.Transaction.Id)

	_, err = f.svc.SubmitWithdrawal(as(player), "wd-2", req)
	assert.ErrorIs(t, err, store.ErrNotEligible)

	_, err = f.svc.SubmitWithdrawal(as(player), "wd-1", models.WithdrawalRequest{
		PlayerId: player.Id, Currency: "USD", Amount: usd("31"), Destination: "acct-1",
	})
	assert.ErrorIs(t, err, store.ErrIdempotencyKeyReuse)
}

func TestDepositReplayIgnoresRemovedCurrency(t *testing.T) {
	f := newFixture(t)
	req := models.DepositRequest{PlayerId: player.Id, Currency: "BTC", Amount: usd("0.5")}
	first, err := f.svc.CreateDeposit(as(player), "dep-1", req)
	require.NoError(t, err)

	delete(f.svc.currencies, "BTC")

	second, err := f.svc.CreateDeposit(as(player), "dep-1", req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.Id, second.Transaction.Id)

	_, err = f.svc.CreateDeposit(as(player), "dep-2", req)
	assert.ErrorIs(t, err, store.ErrBadRequest)
}

func TestDepositProviderRefIsStaffOnly(t *testing.T) {
	f := newFixture(t)
	req := models.DepositRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("25"), ProviderRef: "ext-1"}

	_, err := f.svc.CreateDeposit(as(player), "dep-1", req)
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	res, err := f.svc.CreateDeposit(as(admin), "dep-1", req)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", res.Transaction.ProviderRef)
}

func TestProviderEventAmount(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateDeposit(as(player), "dep-1", models.DepositRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("25")})
	require.NoError(t, err)
	ref := res.Transaction.ProviderRef

	for _, amount := range []string{"lots", "0", "-25"} {
		_, err := f.svc.HandleProviderEvent(context.Background(), models.ProviderEvent{
			ProviderRef: ref, Kind: "deposit", Outcome: "success", Amount: amount,
		})
		assert.ErrorIs(t, err, store.ErrBadRequest, amount)
	}

	ack, err := f.svc.HandleProviderEvent(context.Background(), models.ProviderEvent{
		ProviderRef: ref, Kind: "deposit", Outcome: "success", Amount: "2500",
	})
	require.NoError(t, err)
	assert.Equal(t, string(settlement.ResultIgnored), ack.Result)
	assert.True(t, f.balance(t).Available.IsZero())

	ack, err = f.svc.HandleProviderEvent(context.Background(), models.ProviderEvent{
		ProviderRef: ref, Kind: "deposit", Outcome: "success", Amount: "25",
	})
	require.NoError(t, err)
	assert.Equal(t, string(settlement.ResultApplied), ack.Result)
	assert.True(t, f.balance(t).Available.Equal(usd("25")))
}

func TestStaleExpectedStateFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")

	_, err := f.svc.Approve(as(reviewer), "ap-1", w.Id, models.TransitionRequest{Reason: "ok"})
	require.NoError(t, err)

	_, err = f.svc.Reject(as(reviewer), "rj-1", w.Id, models.TransitionRequest{Reason: "late", ExpectedState: "requested"})
	assert.ErrorIs(t, err, store.ErrInvalidStateTransition)

	_, err = f.svc.Approve(as(reviewer), "ap-2", w.Id, models.TransitionRequest{Reason: "again"})
	assert.ErrorIs(t, err, store.ErrInvalidStateTransition)
}

func TestRejectReturnsHold(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")

	_, err := f.svc.Reject(as(reviewer), "rj-1", w.Id, models.TransitionRequest{})
	require.ErrorIs(t, err, store.ErrReasonRequired)

	res, err := f.svc.Reject(as(reviewer), "rj-2", w.Id, models.TransitionRequest{Reason: "fraud check"})
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StateRejected), res.Transaction.State)
	assert.Equal(t, reviewer.Id, res.Transaction.ReviewedBy)

	b := f.balance(t)
	assert.True(t, b.Available.Equal(usd("100")))
	assert.True(t, b.Held.IsZero())
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")
	req := models.TransitionRequest{Reason: "ok"}

	_, err := f.svc.Approve(context.Background(), "k", w.Id, req)
	assert.ErrorIs(t, err, store.ErrUnauthenticated)

	_, err = f.svc.Approve(as(player), "k", w.Id, req)
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = f.svc.StartPayout(as(reviewer), "k", w.Id)
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = f.svc.SubmitWithdrawal(as(other), "k", models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("10"), Destination: "x"})
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = f.svc.GetBalance(as(other), player.Id, "USD")
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = f.svc.GetTransaction(as(other), w.Id)
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = f.svc.GetTransaction(as(finance), w.Id)
	assert.NoError(t, err)
}

func TestWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")

	tests := []struct {
		name  string
		actor models.Actor
		req   models.WithdrawalRequest
		want  error
	}{
		{"below minimum", player, models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("9.99"), Destination: "a"}, store.ErrInvalidAmount},
		{"too precise", player, models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("10.001"), Destination: "a"}, store.ErrInvalidAmount},
		{"negative", player, models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("-10"), Destination: "a"}, store.ErrInvalidAmount},
		{"unknown currency", player, models.WithdrawalRequest{PlayerId: player.Id, Currency: "XYZ", Amount: usd("10"), Destination: "a"}, store.ErrBadRequest},
		{"no destination", player, models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("10")}, store.ErrBadRequest},
		{"kyc pending", other, models.WithdrawalRequest{PlayerId: other.Id, Currency: "USD", Amount: usd("10"), Destination: "a"}, store.ErrNotEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitWithdrawal(as(tt.actor), "k-"+tt.name, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.SubmitWithdrawal(as(player), "", models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: usd("10"), Destination: "a"})
	assert.ErrorIs(t, err, store.ErrBadRequest)
}

func TestPayoutTerminalProviderFailureIsStored(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")
	_, err := f.svc.Approve(as(reviewer), "ap-1", w.Id, models.TransitionRequest{Reason: "ok"})
	require.NoError(t, err)

	f.provider.FailNext(store.ErrBadRequest)
	_, err = f.svc.StartPayout(as(finance), "po-1", w.Id)
	require.ErrorIs(t, err, store.ErrBadRequest)

	res, err := f.svc.StartPayout(as(finance), "po-1", w.Id)
	assert.ErrorIs(t, err, store.ErrBadRequest)
	assert.True(t, res.Replayed)
	assert.Equal(t, 1, f.provider.Calls())

	res, err = f.svc.StartPayout(as(finance), "po-2", w.Id)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatePayoutPending), res.Transaction.State)
}

func TestPayoutInFlightReservation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")
	_, err := f.svc.Approve(as(reviewer), "ap-1", w.Id, models.TransitionRequest{Reason: "ok"})
	require.NoError(t, err)

	op, err := newOperation(actionWithdrawalPayout, w.Id, "po-1", struct {
		From lifecycle.State `json:"from"`
	}{lifecycle.StateApproved})
	require.NoError(t, err)

	reserve := func(at time.Time) {
		require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_ = tx.DeleteIdempotencyRecord(ctx, op.scope(), op.key)
			_, err := tx.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
				Scope: op.scope(), Key: op.key, RequestHash: op.hash, Status: models.IdempotencyInFlight,
				CreatedAt: at, UpdatedAt: at,
			})
			return err
		}))
	}

	reserve(time.Now().UTC())
	_, err = f.svc.StartPayout(as(finance), "po-1", w.Id)
	assert.ErrorIs(t, err, store.ErrRequestInFlight)
	assert.Equal(t, 0, f.provider.Calls())

	reserve(time.Now().UTC().Add(-time.Hour))
	res, err := f.svc.StartPayout(as(finance), "po-1", w.Id)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatePayoutPending), res.Transaction.State)

	// the client retrying after REQUEST_IN_FLIGHT gets the original answer
	again, err := f.svc.StartPayout(as(finance), "po-1", w.Id)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, res.Transaction.Id, again.Transaction.Id)
	assert.Equal(t, res.Transaction.ProviderRef, again.Transaction.ProviderRef)
	assert.Equal(t, 1, f.provider.Calls())
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "dep-1", "100")
	f.withdraw(t, "wd-1", "30")
	f.withdraw(t, "wd-2", "20")

	page, err := f.svc.ListTransactions(as(player), player.Id, TransactionQuery{Type: "withdrawal"})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	assert.Equal(t, defaultPageLimit, page.Limit)

	page, err = f.svc.ListTransactions(as(reviewer), player.Id, TransactionQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 1)

	_, err = f.svc.ListTransactions(as(player), player.Id, TransactionQuery{State: "bogus"})
	assert.ErrorIs(t, err, store.ErrBadRequest)
}
