package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)

	service, err := NewServiceFromDB(db)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func newWithdrawal(id, playerId string, amount decimal.Decimal) *models.Transaction {
	now := time.Now().UTC()
	return &models.Transaction{
		Id:        id,
		Type:      lifecycle.KindWithdrawal,
		PlayerId:  playerId,
		Currency:  "USD",
		Amount:    amount,
		State:     lifecycle.StateRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWithTx_WalletCreatedAndUpdated(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	key := models.WalletKey{PlayerId: "player1", Currency: "USD"}

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if !w.Available.IsZero() || !w.Held.IsZero() {
			t.Errorf("Expected zero wallet, got available=%s held=%s", w.Available, w.Held)
		}
		w.Available = decimal.NewFromInt(100)
		w.Held = decimal.NewFromInt(25)
		w.UpdatedAt = time.Now().UTC()
		return tx.UpdateWallet(ctx, w)
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	w, err := service.GetWallet(ctx, key)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !w.Available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected available 100, got %s", w.Available.String())
	}
	if !w.Total().Equal(decimal.NewFromInt(125)) {
		t.Errorf("Expected total 125, got %s", w.Total().String())
	}
	if w.Version != 2 {
		t.Errorf("Expected version 2, got %d", w.Version)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	boom := errors.New("boom")

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertTransaction(ctx, newWithdrawal("tx1", "player1", decimal.NewFromInt(5))); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	if _, err := service.GetTransaction(ctx, "tx1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected rolled back transaction to be missing, got %v", err)
	}
}

func TestUpdateWallet_StaleVersion(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	key := models.WalletKey{PlayerId: "player1", Currency: "USD"}

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(ctx, key)
		if err != nil {
			return err
		}
		stale := *w
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}
		return tx.UpdateWallet(ctx, &stale)
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected concurrent modification error, got: %v", err)
	}
}

func TestUpdateTransaction_ExpectedStateGuard(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	tr := newWithdrawal("tx1", "player1", decimal.NewFromInt(10))

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTransaction(ctx, tr)
	})
	if err != nil {
		t.Fatalf("InsertTransaction failed: %v", err)
	}

	tr.State = lifecycle.StateApproved
	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateTransaction(ctx, tr, lifecycle.StateRequested)
	})
	if err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}

	// Second update still claims the record is requested
	tr.State = lifecycle.StateRejected
	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateTransaction(ctx, tr, lifecycle.StateRequested)
	})
	if !errors.Is(err, store.ErrInvalidStateTransition) {
		t.Errorf("Expected invalid state transition, got: %v", err)
	}

	stored, err := service.GetTransaction(ctx, "tx1")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if stored.State != lifecycle.StateApproved {
		t.Errorf("Expected state approved, got %s", stored.State)
	}
}

func TestInsertTransaction_DuplicateProviderRef(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	first := newWithdrawal("tx1", "player1", decimal.NewFromInt(1))
	first.ProviderRef = "ref-1"
	second := newWithdrawal("tx2", "player1", decimal.NewFromInt(1))
	second.ProviderRef = "ref-1"
	third := newWithdrawal("tx3", "player1", decimal.NewFromInt(1))

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTransaction(ctx, first)
	})
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTransaction(ctx, second)
	})
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected duplicate transaction error, got: %v", err)
	}

	// Empty provider refs never collide
	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTransaction(ctx, third)
	})
	if err != nil {
		t.Errorf("Insert without provider ref failed: %v", err)
	}

	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.GetTransactionByProviderRefForUpdate(ctx, "ref-1")
		if err != nil {
			return err
		}
		if found.Id != "tx1" {
			t.Errorf("Expected tx1, got %s", found.Id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Lookup by provider ref failed: %v", err)
	}
}

func TestIdempotencyRecord_Lifecycle(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	rec := &models.IdempotencyRecord{
		Scope:       "withdrawal.submit:player1",
		Key:         "k1",
		RequestHash: "abc",
		Status:      models.IdempotencyInFlight,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetIdempotencyRecord(ctx, rec.Scope, rec.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			t.Errorf("Expected no record, got %+v", existing)
		}

		inserted, err := tx.InsertIdempotencyRecord(ctx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			t.Error("Expected first insert to succeed")
		}

		inserted, err = tx.InsertIdempotencyRecord(ctx, rec)
		if err != nil {
			return err
		}
		if inserted {
			t.Error("Expected second insert to be ignored")
		}

		rec.Status = models.IdempotencyDone
		rec.TransactionId = "tx1"
		rec.Response = []byte(`{"id":"tx1"}`)
		return tx.UpdateIdempotencyRecord(ctx, rec)
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetIdempotencyRecord(ctx, rec.Scope, rec.Key)
		if err != nil {
			return err
		}
		if got == nil || got.Status != models.IdempotencyDone || string(got.Response) != `{"id":"tx1"}` {
			t.Errorf("Unexpected stored record: %+v", got)
		}
		if err := tx.DeleteIdempotencyRecord(ctx, rec.Scope, rec.Key); err != nil {
			return err
		}
		got, err = tx.GetIdempotencyRecord(ctx, rec.Scope, rec.Key)
		if err != nil {
			return err
		}
		if got != nil {
			t.Errorf("Expected record to be deleted, got %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
}
