// Package sandbox is an in-process payout provider for development and tests.
// It accepts every instruction and never moves money; settlement is driven
// by posting provider webhooks.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const Name = "sandbox"

var _ ledger.PayoutProvider = (*Provider)(nil)

// Provider remembers each idempotency key, so a repeated instruction returns
// the original payout.
type Provider struct {
	mu       sync.Mutex
	payouts  map[string]*models.Payout
	failures []error
	calls    int
}

func New() *Provider {
	return &Provider{payouts: make(map[string]*models.Payout)}
}

func (p *Provider) Name() string {
	return Name
}

// FailNext makes the next len(errs) new instructions fail with errs in order.
func (p *Provider) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

// Calls is the number of InitiatePayout calls, repeats included.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Provider) InitiatePayout(ctx context.Context, in models.PayoutInstruction) (*models.Payout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.IdempotencyKey == "" {
		return nil, errors.New("idempotency key is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if existing, ok := p.payouts[in.IdempotencyKey]; ok {
		zap.L().Debug("Sandbox payout replayed", zap.String("idempotency_key", in.IdempotencyKey))
		out := *existing
		return &out, nil
	}

	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return nil, err
	}

	if in.Destination == "" || !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: sandbox rejects instruction for %s", store.ErrBadRequest, in.TransactionId)
	}

	payout := &models.Payout{
		Provider:    Name,
		ProviderRef: "sbx_" + uuid.New().String(),
		ActivityId:  in.IdempotencyKey,
	}
	p.payouts[in.IdempotencyKey] = payout

	zap.L().Info("Sandbox payout accepted",
		zap.String("transaction_id", in.TransactionId),
		zap.String("player_id", in.PlayerId),
		zap.String("currency", in.Currency),
		zap.String("amount", in.Amount.String()),
		zap.String("provider_ref", payout.ProviderRef))

	out := *payout
	return &out, nil
}
