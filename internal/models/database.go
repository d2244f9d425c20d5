package models

import (
	"time"

	"cashier-settlement-go/internal/lifecycle"

	"github.com/shopspring/decimal"
)

type KycStatus string

const (
	KycPending  KycStatus = "pending"
	KycApproved KycStatus = "approved"
	KycRejected KycStatus = "rejected"
)

// Player represents a casino player
type Player struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	KycStatus KycStatus `db:"kyc_status"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// WalletKey identifies a wallet
type WalletKey struct {
	PlayerId string
	Currency string
}

func (k WalletKey) String() string {
	return k.PlayerId + "/" + k.Currency
}

// Wallet is the per (player, currency) balance split into available and held
type Wallet struct {
	PlayerId  string          `db:"player_id"`
	Currency  string          `db:"currency"`
	Available decimal.Decimal `db:"available"`
	Held      decimal.Decimal `db:"held"`
	Version   int64           `db:"version"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (w *Wallet) Key() WalletKey {
	return WalletKey{PlayerId: w.PlayerId, Currency: w.Currency}
}

// Total is always derived, never stored
func (w *Wallet) Total() decimal.Decimal {
	return w.Available.Add(w.Held)
}

// Transaction is a deposit or withdrawal record. Id, Type, PlayerId, Currency
// and Amount never change after insert.
type Transaction struct {
	Id             string          `db:"id"`
	Type           lifecycle.Kind  `db:"type"`
	PlayerId       string          `db:"player_id"`
	Currency       string          `db:"currency"`
	Amount         decimal.Decimal `db:"amount"`
	State          lifecycle.State `db:"state"`
	ProviderRef    string          `db:"provider_ref"`
	IdempotencyKey string          `db:"idempotency_key"`
	Destination    string          `db:"destination"`
	Reason         string          `db:"reason"`
	PayoutAttempts int             `db:"payout_attempts"`
	// PayoutClaim is the provider idempotency key of the payout being sent.
	// PayoutClaimedAt is nil once the sender has let go of the claim.
	PayoutClaim     string     `db:"payout_claim"`
	PayoutClaimedAt *time.Time `db:"payout_claimed_at"`
	ReviewedBy      string     `db:"reviewed_by"`
	ReviewedAt      *time.Time `db:"reviewed_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (t *Transaction) Key() WalletKey {
	return WalletKey{PlayerId: t.PlayerId, Currency: t.Currency}
}

// TransitionEvent is one append-only row of a transaction's state history
type TransitionEvent struct {
	Id             string          `db:"id"`
	TransactionId  string          `db:"transaction_id"`
	FromState      lifecycle.State `db:"from_state"`
	ToState        lifecycle.State `db:"to_state"`
	ActorId        string          `db:"actor_id"`
	ActorRole      string          `db:"actor_role"`
	Reason         string          `db:"reason"`
	IdempotencyKey string          `db:"idempotency_key"`
	CreatedAt      time.Time       `db:"created_at"`
}

type IdempotencyStatus string

const (
	IdempotencyInFlight IdempotencyStatus = "in_flight"
	IdempotencyDone     IdempotencyStatus = "done"
	IdempotencyFailed   IdempotencyStatus = "failed"
)

// IdempotencyRecord is the server-side dedupe row for one (scope, key)
type IdempotencyRecord struct {
	Scope         string            `db:"scope"`
	Key           string            `db:"key"`
	RequestHash   string            `db:"request_hash"`
	Status        IdempotencyStatus `db:"status"`
	TransactionId string            `db:"transaction_id"`
	Response      []byte            `db:"response"`
	ErrorCode     string            `db:"error_code"`
	ErrorMessage  string            `db:"error_message"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
}

// JournalEntry is one side of a double-entry posting
type JournalEntry struct {
	Id            string          `db:"id"`
	TransactionId string          `db:"transaction_id"`
	Event         string          `db:"event"`
	Account       string          `db:"account"`
	Currency      string          `db:"currency"`
	Debit         decimal.Decimal `db:"debit_amount"`
	Credit        decimal.Decimal `db:"credit_amount"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Movement is a single balanced transfer between two journal accounts
type Movement struct {
	TransactionId string
	Event         string
	PlayerId      string
	Currency      string
	Amount        decimal.Decimal
	Source        string
	Destination   string
	CreatedAt     time.Time
}

// Reference is unique per movement and used for de-duplication by mirrors
func (m Movement) Reference() string {
	return m.TransactionId + ":" + m.Event
}
