package store

import (
	"context"
	"errors"

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrIdempotencyKeyReuse    = errors.New("idempotency key reused with a different payload")
	ErrRequestInFlight        = errors.New("request with this idempotency key is still in flight")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrProviderTransient      = errors.New("provider transient failure")
	ErrNotFound               = errors.New("not found")
	ErrNotEligible            = errors.New("player not eligible")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrReasonRequired         = errors.New("reason required")
	ErrBadRequest             = errors.New("bad request")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInvariantViolation     = errors.New("ledger invariant violation")
)

// CreatePlayerParams contains the parameters for creating a player.
type CreatePlayerParams struct {
	Id        string
	Name      string
	Email     string
	KycStatus models.KycStatus
}

// TransactionFilter narrows a history query. Zero values match everything.
type TransactionFilter struct {
	PlayerId string
	Type     lifecycle.Kind
	State    lifecycle.State
	Currency string
	Limit    int
	Offset   int
}

// Tx is the unit of work every ledger mutation runs in. Implementations hold
// the row locks they take until commit or rollback.
type Tx interface {
	// GetWalletForUpdate locks the wallet row, creating a zero wallet first
	// when none exists.
	GetWalletForUpdate(ctx context.Context, key models.WalletKey) (*models.Wallet, error)
	// UpdateWallet writes balances guarded by w.Version and bumps it.
	UpdateWallet(ctx context.Context, w *models.Wallet) error

	InsertTransaction(ctx context.Context, t *models.Transaction) error
	GetTransactionForUpdate(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByProviderRefForUpdate(ctx context.Context, providerRef string) (*models.Transaction, error)
	// UpdateTransaction persists mutable fields only when the stored state
	// still equals expected.
	UpdateTransaction(ctx context.Context, t *models.Transaction, expected lifecycle.State) error

	InsertTransitionEvent(ctx context.Context, e *models.TransitionEvent) error
	InsertJournalEntries(ctx context.Context, entries []models.JournalEntry) error

	// GetIdempotencyRecord returns nil, nil when no record exists.
	GetIdempotencyRecord(ctx context.Context, scope, key string) (*models.IdempotencyRecord, error)
	// InsertIdempotencyRecord returns false when (scope, key) already exists.
	InsertIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) (bool, error)
	UpdateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error
	DeleteIdempotencyRecord(ctx context.Context, scope, key string) error
}

// LedgerStore defines the contract that every backend (SQLite, Postgres) must satisfy.
type LedgerStore interface {
	// WithTx runs fn in one store transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// --- Players ---
	CreatePlayer(ctx context.Context, params CreatePlayerParams) (*models.Player, error)
	GetPlayer(ctx context.Context, playerId string) (*models.Player, error)
	GetPlayerByEmail(ctx context.Context, email string) (*models.Player, error)
	ListPlayers(ctx context.Context) ([]models.Player, error)
	SetKycStatus(ctx context.Context, playerId string, status models.KycStatus) error

	// --- Wallets ---
	GetWallet(ctx context.Context, key models.WalletKey) (*models.Wallet, error)
	ListWallets(ctx context.Context, playerId string) ([]models.Wallet, error)
	ReconcileWallet(ctx context.Context, key models.WalletKey) error

	// --- Transactions ---
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)
	ListTransitionEvents(ctx context.Context, transactionId string) ([]models.TransitionEvent, error)

	// --- Lifecycle ---
	HealthCheck(ctx context.Context) error
	Close()
}
