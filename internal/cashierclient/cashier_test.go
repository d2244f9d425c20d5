package cashierclient_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cashier-settlement-go/internal/api"
	"cashier-settlement-go/internal/auth"
	"cashier-settlement-go/internal/cashierclient"
	"cashier-settlement-go/internal/coordinator"
	"cashier-settlement-go/internal/database"
	"cashier-settlement-go/internal/httpapi"
	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/sandbox"
	"cashier-settlement-go/internal/settlement"
	"cashier-settlement-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "test-webhook-secret"
	issuer        = "cashier-test"
)

var (
	player   = models.Actor{Id: "player-1", Role: models.RolePlayer}
	reviewer = models.Actor{Id: "reviewer-1", Role: models.RoleReviewer}
	finance  = models.Actor{Id: "finance-1", Role: models.RoleFinance}
)

type env struct {
	server   *httptest.Server
	provider *sandbox.Provider
	signer   *auth.JWTSigner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := database.NewServiceFromDB(db)
	require.NoError(t, err)
	_, err = st.CreatePlayer(context.Background(), store.CreatePlayerParams{
		Id: player.Id, Name: "Player One", Email: "one@example.com", KycStatus: models.KycApproved,
	})
	require.NoError(t, err)

	m := ledger.NewMachine(st)
	provider := sandbox.New()
	svc, err := api.NewCashierService(api.Params{
		Machine:       m,
		Provider:      provider,
		Reconciler:    settlement.NewReconciler(m, provider.Name(), nil),
		Currencies:    []models.Currency{{Symbol: "USD", Precision: 2, MinWithdrawal: "10"}},
		InFlightLease: time.Minute,
	})
	require.NoError(t, err)

	router := httpapi.NewRouter(httpapi.RouterParams{
		Handler:        httpapi.NewHandler(svc),
		Verifier:       auth.NewJWTVerifier(jwtSecret, issuer),
		WebhookSecret:  webhookSecret,
		AllowedOrigins: []string{"*"},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &env{server: server, provider: provider, signer: auth.NewJWTSigner(jwtSecret, issuer)}
}

func (e *env) cashier(t *testing.T, actor models.Actor) *cashierclient.Cashier {
	t.Helper()
	token, _, err := e.signer.SignActor(actor, time.Now(), time.Hour)
	require.NoError(t, err)
	coord := coordinator.New(models.CoordinatorConfig{
		RetrySchedule: []time.Duration{0, 5 * time.Millisecond, 10 * time.Millisecond},
	})
	return cashierclient.NewCashier(cashierclient.New(e.server.URL, token), coord, actor)
}

func settle(t *testing.T, c *cashierclient.Cashier, ref, kind, outcome string) *models.WebhookAck {
	t.Helper()
	ack, err := c.Client().SendProviderEvent(context.Background(), webhookSecret, models.ProviderEvent{
		ProviderRef: ref, Kind: kind, Outcome: outcome,
	})
	require.NoError(t, err)
	return ack
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSmokeScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, rv, fin := e.cashier(t, player), e.cashier(t, reviewer), e.cashier(t, finance)

	dep, err := p.Deposit(ctx, models.DepositRequest{PlayerId: player.Id, Currency: "USD", Amount: amount("100")})
	require.NoError(t, err)
	assert.Equal(t, "pending", dep.Transaction.State)
	assert.Equal(t, "applied", settle(t, p, dep.Transaction.ProviderRef, "deposit", "success").Result)

	wd, err := p.Withdraw(ctx, models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: amount("50"), Destination: "acct-123"})
	require.NoError(t, err)
	assert.Equal(t, "requested", wd.Transaction.State)

	bal, err := p.Client().GetBalance(ctx, player.Id, "USD")
	require.NoError(t, err)
	assert.True(t, bal.Available.Equal(amount("50")), "available %s", bal.Available)
	assert.True(t, bal.Held.Equal(amount("50")), "held %s", bal.Held)

	_, err = rv.Approve(ctx, wd.Transaction.Id, models.TransitionRequest{Reason: "looks fine"})
	require.NoError(t, err)

	// the first provider call fails transiently; the coordinator retries under the same key
	e.provider.FailNext(store.ErrProviderTransient)
	paying, err := fin.StartPayout(ctx, wd.Transaction.Id)
	require.NoError(t, err)
	assert.Equal(t, "payout_pending", paying.Transaction.State)
	assert.Equal(t, 2, e.provider.Calls())

	assert.Equal(t, "applied", settle(t, fin, paying.Transaction.ProviderRef, "payout", "failure").Result)

	failed, err := fin.AwaitState(ctx, wd.Transaction.Id, coordinator.PollConfig{Interval: time.Millisecond, MaxAttempts: 5}, "payout_failed")
	require.NoError(t, err)
	assert.Equal(t, "payout_failed", failed.State)

	retried, err := fin.RetryPayout(ctx, wd.Transaction.Id)
	require.NoError(t, err)
	assert.Equal(t, "payout_pending", retried.Transaction.State)
	assert.NotEqual(t, paying.Transaction.ProviderRef, retried.Transaction.ProviderRef)

	assert.Equal(t, "applied", settle(t, fin, retried.Transaction.ProviderRef, "payout", "success").Result)
	assert.Equal(t, "duplicate", settle(t, fin, retried.Transaction.ProviderRef, "payout", "success").Result)

	paid, err := p.Client().GetTransaction(ctx, wd.Transaction.Id)
	require.NoError(t, err)
	assert.Equal(t, "paid", paid.State)
	assert.NotEmpty(t, paid.Events)

	bal, err = p.Client().GetBalance(ctx, player.Id, "USD")
	require.NoError(t, err)
	assert.True(t, bal.Available.Equal(amount("50")), "available %s", bal.Available)
	assert.True(t, bal.Held.IsZero(), "held %s", bal.Held)
	assert.True(t, bal.Total.Equal(amount("50")), "total %s", bal.Total)

	page, err := p.Client().ListTransactions(ctx, player.Id, cashierclient.Query{Type: "withdrawal"})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, wd.Transaction.Id, page.Transactions[0].Id)
}

func TestErrorsMapToSentinels(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.cashier(t, player)

	_, err := p.Withdraw(ctx, models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: amount("20"), Destination: "acct-123"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)

	var apiErr *cashierclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode())
	assert.Equal(t, store.CodeInsufficientFunds, apiErr.Code)

	_, err = p.Approve(ctx, "some-withdrawal", models.TransitionRequest{})
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	anon := cashierclient.New(e.server.URL, "")
	_, err = anon.GetBalance(ctx, player.Id, "USD")
	assert.ErrorIs(t, err, store.ErrUnauthenticated)

	_, err = anon.SendProviderEvent(ctx, "wrong-secret", models.ProviderEvent{ProviderRef: "x", Kind: "deposit", Outcome: "success"})
	assert.ErrorIs(t, err, store.ErrUnauthenticated)

	ack, err := anon.SendProviderEvent(ctx, webhookSecret, models.ProviderEvent{ProviderRef: "unknown", Kind: "deposit", Outcome: "success"})
	require.NoError(t, err)
	assert.Equal(t, "dropped", ack.Result)
}

func TestKeyReuseIsConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	token, _, err := e.signer.SignActor(player, time.Now(), time.Hour)
	require.NoError(t, err)
	c := cashierclient.New(e.server.URL, token)

	req := models.DepositRequest{PlayerId: player.Id, Currency: "USD", Amount: amount("10")}
	first, err := c.CreateDeposit(ctx, "key-1", req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := c.CreateDeposit(ctx, "key-1", req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Transaction.Id, again.Transaction.Id)

	req.Amount = amount("11")
	_, err = c.CreateDeposit(ctx, "key-1", req)
	assert.ErrorIs(t, err, store.ErrIdempotencyKeyReuse)
}

func TestCoordinatorRetriesWithSameKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":"PROVIDER_TRANSIENT","message":"try later"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"tx-1","type":"withdrawal","state":"requested"}`))
	}))
	defer srv.Close()

	coord := coordinator.New(models.CoordinatorConfig{
		RetrySchedule: []time.Duration{0, time.Millisecond, time.Millisecond},
	})
	c := cashierclient.NewCashier(cashierclient.New(srv.URL, "token"), coord, player)

	out, err := c.Withdraw(context.Background(), models.WithdrawalRequest{PlayerId: player.Id, Currency: "USD", Amount: amount("10"), Destination: "acct"})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", out.Transaction.Id)

	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])

	entry, ok := coord.Entry(player.String(), player.Id, "withdraw")
	require.True(t, ok)
	assert.Equal(t, coordinator.StatusDone, entry.Status)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, keys[0], entry.Key())
}

func TestCoordinatorStopsOnBusinessError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"INVALID_STATE_TRANSITION","message":"already approved"}}`))
	}))
	defer srv.Close()

	coord := coordinator.New(models.CoordinatorConfig{
		RetrySchedule: []time.Duration{0, time.Millisecond, time.Millisecond},
	})
	c := cashierclient.NewCashier(cashierclient.New(srv.URL, "token"), coord, reviewer)

	_, err := c.Approve(context.Background(), "tx-1", models.TransitionRequest{})
	assert.ErrorIs(t, err, store.ErrInvalidStateTransition)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAwaitStateExhausts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"tx-1","state":"payout_pending","events":[]}`))
	}))
	defer srv.Close()

	c := cashierclient.NewCashier(cashierclient.New(srv.URL, "token"), coordinator.New(models.CoordinatorConfig{}), finance)
	last, err := c.AwaitState(context.Background(), "tx-1", coordinator.PollConfig{Interval: time.Millisecond, MaxAttempts: 3}, "paid")
	assert.ErrorIs(t, err, coordinator.ErrPollExhausted)
	require.NotNil(t, last)
	assert.Equal(t, "payout_pending", last.State)
}
