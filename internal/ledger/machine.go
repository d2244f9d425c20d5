package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Machine drives deposit and withdrawal records through the lifecycle table and
// applies each transition's ledger effect in the same unit.
type Machine struct {
	store    store.LedgerStore
	ledger   *Ledger
	mirror   JournalMirror
	observer func(models.Transaction, models.TransitionEvent)
	now      func() time.Time

	claimLease time.Duration
}

type Option func(*Machine)

// WithMirror forwards committed movements to m.
func WithMirror(m JournalMirror) Option {
	return func(mc *Machine) { mc.mirror = m }
}

// WithTransitionObserver is called once per committed transition.
func WithTransitionObserver(fn func(models.Transaction, models.TransitionEvent)) Option {
	return func(mc *Machine) { mc.observer = fn }
}

// WithClaimLease sets how long a payout claim blocks other callers.
func WithClaimLease(d time.Duration) Option {
	return func(mc *Machine) {
		if d > 0 {
			mc.claimLease = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(mc *Machine) { mc.now = now }
}

func NewMachine(st store.LedgerStore, opts ...Option) *Machine {
	m := &Machine{
		store:      st,
		ledger:     New(),
		now:        time.Now,
		claimLease: DefaultClaimLease,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Ledger() *Ledger {
	return m.ledger
}

func (m *Machine) Store() store.LedgerStore {
	return m.store
}

// Atomically runs fn in one store transaction.
func (m *Machine) Atomically(ctx context.Context, fn func(ctx context.Context, u *Unit) error) error {
	var unit *Unit
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		unit = &Unit{tx: tx, now: m.now().UTC()}
		return fn(ctx, unit)
	})
	if err != nil {
		return err
	}
	m.publish(ctx, unit)
	return nil
}

func (m *Machine) publish(ctx context.Context, u *Unit) {
	if m.observer != nil {
		for _, e := range u.events {
			m.observer(e.transaction, e.event)
		}
	}

	if m.mirror == nil || len(u.movements) == 0 {
		return
	}
	if err := m.mirror.Post(ctx, u.movements); err != nil {
		zap.L().Error("Failed to mirror journal movements",
			zap.Int("movements", len(u.movements)),
			zap.String("transaction_id", u.movements[0].TransactionId),
			zap.Error(err))
	}
}

// NewDeposit describes a deposit the player has started with a provider.
type NewDeposit struct {
	PlayerId       string
	Currency       string
	Amount         decimal.Decimal
	ProviderRef    string
	IdempotencyKey string
	Actor          models.Actor
}

// CreateDeposit inserts a pending deposit. The wallet is untouched until the
// provider confirms the deposit.
func (m *Machine) CreateDeposit(ctx context.Context, u *Unit, d NewDeposit) (*models.Transaction, error) {
	if err := validateAmount(d.Amount); err != nil {
		return nil, err
	}

	ref := d.ProviderRef
	if ref == "" {
		ref = "dep_" + uuid.New().String()
	}

	t := &models.Transaction{
		Id:             uuid.New().String(),
		Type:           lifecycle.KindDeposit,
		PlayerId:       d.PlayerId,
		Currency:       d.Currency,
		Amount:         d.Amount,
		State:          lifecycle.Initial(lifecycle.KindDeposit),
		ProviderRef:    ref,
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      u.now,
		UpdatedAt:      u.now,
	}
	if err := u.tx.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to insert deposit: %w", err)
	}
	if err := m.appendEvent(ctx, u, t, "", d.Actor, "", d.IdempotencyKey); err != nil {
		return nil, err
	}

	zap.L().Info("Deposit created",
		zap.String("transaction_id", t.Id),
		zap.String("player_id", t.PlayerId),
		zap.String("currency", t.Currency),
		zap.String("amount", t.Amount.String()),
		zap.String("provider_ref", t.ProviderRef))

	return t, nil
}

// NewWithdrawal describes a player's withdrawal request.
type NewWithdrawal struct {
	PlayerId       string
	Currency       string
	Amount         decimal.Decimal
	Destination    string
	IdempotencyKey string
	Actor          models.Actor
}

// SubmitWithdrawal places the hold and inserts the requested record. Nothing
// is written when the hold fails.
func (m *Machine) SubmitWithdrawal(ctx context.Context, u *Unit, w NewWithdrawal) (*models.Transaction, error) {
	t := &models.Transaction{
		Id:             uuid.New().String(),
		Type:           lifecycle.KindWithdrawal,
		PlayerId:       w.PlayerId,
		Currency:       w.Currency,
		Amount:         w.Amount,
		State:          lifecycle.Initial(lifecycle.KindWithdrawal),
		IdempotencyKey: w.IdempotencyKey,
		Destination:    w.Destination,
		CreatedAt:      u.now,
		UpdatedAt:      u.now,
	}

	if err := u.tx.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	if _, err := m.ledger.PlaceWithdrawalHold(ctx, u, t.Key(), t.Amount, t.Id); err != nil {
		return nil, err
	}
	if err := m.appendEvent(ctx, u, t, "", w.Actor, "", w.IdempotencyKey); err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal requested",
		zap.String("transaction_id", t.Id),
		zap.String("player_id", t.PlayerId),
		zap.String("currency", t.Currency),
		zap.String("amount", t.Amount.String()))

	return t, nil
}

// Change asks for one transition. Expected is the state the caller observed;
// when empty the state read under lock is used.
type Change struct {
	TransactionId  string
	Expected       lifecycle.State
	To             lifecycle.State
	Actor          models.Actor
	Reason         string
	ProviderRef    string
	IdempotencyKey string
	// ClaimKey is the payout claim the caller holds, if any.
	ClaimKey string
}

// Transition moves one record along the table and applies the row's effect.
// The record is locked before its wallet.
func (m *Machine) Transition(ctx context.Context, u *Unit, c Change) (*models.Transaction, error) {
	t, err := u.tx.GetTransactionForUpdate(ctx, c.TransactionId)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", c.TransactionId, err)
	}

	expected := c.Expected
	if expected == "" {
		expected = t.State
	}

	tr, ok := lifecycle.Lookup(t.Type, expected, c.To)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s -> %s is not allowed", store.ErrInvalidStateTransition, t.Type, expected, c.To)
	}
	if t.State != expected {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", store.ErrInvalidStateTransition, t.Id, t.State, expected)
	}

	if m.claimHeld(t, u.now) && c.ClaimKey != t.PayoutClaim {
		return nil, fmt.Errorf("%w: payout of %s is being sent", store.ErrInvalidStateTransition, t.Id)
	}

	reason := strings.TrimSpace(c.Reason)
	if tr.ReasonRequired && reason == "" {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrReasonRequired, tr.From, tr.To)
	}

	if tr.ProviderRef {
		if c.ProviderRef == "" {
			return nil, fmt.Errorf("%w: provider reference required for %s", store.ErrBadRequest, tr.To)
		}
		t.ProviderRef = c.ProviderRef
		t.PayoutAttempts++
	}

	switch tr.Effect {
	case lifecycle.EffectSettleDeposit:
		if _, err := m.ledger.ApplyDepositSettlement(ctx, u, t.Key(), t.Amount, t.Id); err != nil {
			return nil, err
		}
	case lifecycle.EffectReleasePaid:
		if _, err := m.ledger.ReleaseHold(ctx, u, t.Key(), t.Amount, OutcomePaid, t.Id); err != nil {
			return nil, err
		}
	case lifecycle.EffectReleaseReturned:
		if _, err := m.ledger.ReleaseHold(ctx, u, t.Key(), t.Amount, OutcomeReturned, t.Id); err != nil {
			return nil, err
		}
	}

	t.State = tr.To
	t.Reason = reason
	t.PayoutClaim = ""
	t.PayoutClaimedAt = nil
	t.UpdatedAt = u.now
	if tr.To == lifecycle.StateApproved || tr.To == lifecycle.StateRejected {
		reviewedAt := u.now
		t.ReviewedBy = c.Actor.Id
		t.ReviewedAt = &reviewedAt
	}

	if err := u.tx.UpdateTransaction(ctx, t, expected); err != nil {
		return nil, fmt.Errorf("failed to update transaction %s: %w", t.Id, err)
	}
	if err := m.appendEvent(ctx, u, t, expected, c.Actor, reason, c.IdempotencyKey); err != nil {
		return nil, err
	}

	zap.L().Info("Transaction transitioned",
		zap.String("transaction_id", t.Id),
		zap.String("type", string(t.Type)),
		zap.String("from", string(expected)),
		zap.String("to", string(t.State)),
		zap.String("actor", c.Actor.String()),
		zap.String("effect", tr.Effect.String()))

	return t, nil
}

func (m *Machine) appendEvent(ctx context.Context, u *Unit, t *models.Transaction, from lifecycle.State, actor models.Actor, reason, key string) error {
	e := models.TransitionEvent{
		Id:             uuid.New().String(),
		TransactionId:  t.Id,
		FromState:      from,
		ToState:        t.State,
		ActorId:        actor.Id,
		ActorRole:      string(actor.Role),
		Reason:         reason,
		IdempotencyKey: key,
		CreatedAt:      u.now,
	}
	if err := u.tx.InsertTransitionEvent(ctx, &e); err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	u.events = append(u.events, transitioned{transaction: *t, event: e})
	return nil
}
