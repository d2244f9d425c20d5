package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/postgres"
	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *postgres.Service {
	t.Helper()
	url := os.Getenv("CASHIER_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("CASHIER_TEST_POSTGRES_URL not set")
	}
	s, err := postgres.NewService(context.Background(), models.DatabaseConfig{Driver: "postgres", Url: url, MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestWithdrawalLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	m := ledger.NewMachine(s)
	key := models.WalletKey{PlayerId: "pg-" + uuid.New().String(), Currency: "USD"}
	player := models.Actor{Id: key.PlayerId, Role: models.RolePlayer}
	finance := models.Actor{Id: "fin-1", Role: models.RoleFinance}

	require.NoError(t, m.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		_, err := m.Ledger().ApplyDepositSettlement(ctx, u, key, decimal.RequireFromString("100"), "seed")
		return err
	}))

	var w *models.Transaction
	require.NoError(t, m.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		var err error
		w, err = m.SubmitWithdrawal(ctx, u, ledger.NewWithdrawal{
			PlayerId: key.PlayerId, Currency: key.Currency, Amount: decimal.RequireFromString("40.5"), Actor: player,
		})
		return err
	}))

	steps := []ledger.Change{
		{To: lifecycle.StateApproved, Reason: "ok", Actor: finance},
		{To: lifecycle.StatePayoutPending, ProviderRef: "ref-" + w.Id, Actor: finance},
		{To: lifecycle.StatePaid, Reason: "settled", Actor: finance},
	}
	for _, c := range steps {
		c.TransactionId = w.Id
		require.NoError(t, m.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
			_, err := m.Transition(ctx, u, c)
			return err
		}))
	}

	wallet, err := s.GetWallet(ctx, key)
	require.NoError(t, err)
	assert.True(t, wallet.Available.Equal(decimal.RequireFromString("59.5")), wallet.Available.String())
	assert.True(t, wallet.Held.IsZero())
	require.NoError(t, s.ReconcileWallet(ctx, key))

	events, err := s.ListTransitionEvents(ctx, w.Id)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, lifecycle.StatePaid, events[3].ToState)
}

func TestConcurrentHoldsNeverOverdraw(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	m := ledger.NewMachine(s)
	key := models.WalletKey{PlayerId: "pg-" + uuid.New().String(), Currency: "USD"}

	require.NoError(t, m.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
		_, err := m.Ledger().ApplyDepositSettlement(ctx, u, key, decimal.NewFromInt(100), "seed")
		return err
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Atomically(ctx, func(ctx context.Context, u *ledger.Unit) error {
				_, err := m.Ledger().PlaceWithdrawalHold(ctx, u, key, decimal.NewFromInt(30), uuid.New().String())
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	wallet, err := s.GetWallet(ctx, key)
	require.NoError(t, err)
	assert.True(t, wallet.Held.Equal(decimal.NewFromInt(90)))
	assert.True(t, wallet.Available.Equal(decimal.NewFromInt(10)))
}

func TestIdempotencyRecordInsertOnce(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	scope := "withdrawal.submit:" + uuid.New().String()

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec := &models.IdempotencyRecord{Scope: scope, Key: "k1", RequestHash: "h", Status: models.IdempotencyInFlight}
		inserted, err := tx.InsertIdempotencyRecord(ctx, rec)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = tx.InsertIdempotencyRecord(ctx, rec)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := tx.GetIdempotencyRecord(ctx, scope, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.IdempotencyInFlight, got.Status)
		return nil
	})
	require.NoError(t, err)
}
