package ledger

import (
	"context"

	"cashier-settlement-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalMirror receives committed movements. Posting must be idempotent by
// Movement.Reference.
type JournalMirror interface {
	Post(ctx context.Context, movements []models.Movement) error
}

// AvailableAccount is the journal account of a player's spendable funds.
func AvailableAccount(playerId string) string {
	return "players:" + playerId + ":available"
}

// HeldAccount is the journal account of a player's reserved funds.
func HeldAccount(playerId string) string {
	return "players:" + playerId + ":held"
}

// DepositsAccount is the platform account deposits are funded from.
func DepositsAccount() string {
	return "platform:deposits"
}

// PayoutsAccount is the platform account paid withdrawals leave through.
func PayoutsAccount() string {
	return "platform:payouts"
}

// journalEntries expands a movement into its debit and credit rows.
func journalEntries(m models.Movement) []models.JournalEntry {
	return []models.JournalEntry{
		{
			Id:            uuid.New().String(),
			TransactionId: m.TransactionId,
			Event:         m.Event,
			Account:       m.Destination,
			Currency:      m.Currency,
			Debit:         m.Amount,
			Credit:        decimal.Zero,
			CreatedAt:     m.CreatedAt,
		},
		{
			Id:            uuid.New().String(),
			TransactionId: m.TransactionId,
			Event:         m.Event,
			Account:       m.Source,
			Currency:      m.Currency,
			Debit:         decimal.Zero,
			Credit:        m.Amount,
			CreatedAt:     m.CreatedAt,
		},
	}
}
