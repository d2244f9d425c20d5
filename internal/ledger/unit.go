package ledger

import (
	"context"
	"fmt"
	"time"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"
)

// Unit is one atomic piece of work against the store. Movements and events
// recorded on it are published only after the store transaction commits.
type Unit struct {
	tx        store.Tx
	now       time.Time
	movements []models.Movement
	events    []transitioned
}

type transitioned struct {
	transaction models.Transaction
	event       models.TransitionEvent
}

// Tx exposes the underlying store transaction for callers that keep their own
// rows (idempotency records) in the same unit.
func (u *Unit) Tx() store.Tx {
	return u.tx
}

// Now is the timestamp shared by everything written in this unit.
func (u *Unit) Now() time.Time {
	return u.now
}

func (u *Unit) record(ctx context.Context, m models.Movement) error {
	m.CreatedAt = u.now
	if err := u.tx.InsertJournalEntries(ctx, journalEntries(m)); err != nil {
		return fmt.Errorf("failed to add journal entries: %w", err)
	}
	u.movements = append(u.movements, m)
	return nil
}
