package api

import (
	"context"
	"sync"
	"testing"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/lifecycle"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/sandbox"
	"cashier-settlement-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedProvider holds the first payout sent under key inside the provider
// until released.
type gatedProvider struct {
	*sandbox.Provider
	key     string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedProvider(p *sandbox.Provider, key string) *gatedProvider {
	return &gatedProvider{Provider: p, key: key, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedProvider) InitiatePayout(ctx context.Context, in models.PayoutInstruction) (*models.Payout, error) {
	if in.IdempotencyKey == g.key {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.Provider.InitiatePayout(ctx, in)
}

func TestConcurrentPayoutsSendOnce(t *testing.T) {
	var gate *gatedProvider
	f := newFixtureWith(t, func(p *sandbox.Provider) ledger.PayoutProvider {
		gate = newGatedProvider(p, "po-a")
		return gate
	})
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")
	_, err := f.svc.Approve(as(reviewer), "ap-1", w.Id, models.TransitionRequest{Reason: "ok"})
	require.NoError(t, err)

	var first Result
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		first, firstErr = f.svc.StartPayout(as(finance), "po-a", w.Id)
	}()
	<-gate.entered

	// a second operator with another key while the first payout is in the provider
	_, err = f.svc.StartPayout(as(finance), "po-b", w.Id)
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)

	close(gate.release)
	<-done
	require.NoError(t, firstErr)
	assert.Equal(t, string(lifecycle.StatePayoutPending), first.Transaction.State)
	assert.Equal(t, 1, f.provider.Calls())
	assert.Equal(t, 1, first.Transaction.PayoutAttempts)
}

func TestRejectWaitsForPayoutRetry(t *testing.T) {
	var gate *gatedProvider
	f := newFixtureWith(t, func(p *sandbox.Provider) ledger.PayoutProvider {
		gate = newGatedProvider(p, "retry-1")
		return gate
	})
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")
	_, err := f.svc.Approve(as(reviewer), "ap-1", w.Id, models.TransitionRequest{Reason: "ok"})
	require.NoError(t, err)

	res, err := f.svc.StartPayout(as(finance), "po-1", w.Id)
	require.NoError(t, err)
	_, err = f.svc.MarkFailed(as(finance), "mf-1", w.Id, models.TransitionRequest{Reason: "bounced"})
	require.NoError(t, err)

	var retryErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, retryErr = f.svc.RetryPayout(as(finance), "retry-1", w.Id)
	}()
	<-gate.entered

	_, err = f.svc.Reject(as(reviewer), "rj-1", w.Id, models.TransitionRequest{Reason: "give up"})
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)
	assert.True(t, f.balance(t).Held.Equal(usd("30")))

	close(gate.release)
	<-done
	require.NoError(t, retryErr)

	got, err := f.svc.GetTransaction(as(finance), w.Id)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatePayoutPending), got.State)
	assert.NotEqual(t, res.Transaction.ProviderRef, got.ProviderRef)
	assert.True(t, f.balance(t).Held.Equal(usd("30")))
}

func TestTransientPayoutFailureResendsSameProviderKey(t *testing.T) {
	var seen []string
	f := newFixtureWith(t, func(p *sandbox.Provider) ledger.PayoutProvider {
		return recordingProvider{Provider: p, keys: &seen}
	})
	f.fund(t, "dep-1", "100")
	w := f.withdraw(t, "wd-1", "30")
	_, err := f.svc.Approve(as(reviewer), "ap-1", w.Id, models.TransitionRequest{Reason: "ok"})
	require.NoError(t, err)

	f.provider.FailNext(store.ErrProviderTransient)
	_, err = f.svc.StartPayout(as(finance), "po-a", w.Id)
	require.ErrorIs(t, err, store.ErrProviderTransient)

	// another operator picks it up; the provider sees the first key again
	res, err := f.svc.StartPayout(as(finance), "po-b", w.Id)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatePayoutPending), res.Transaction.State)
	assert.Equal(t, []string{"po-a", "po-a"}, seen)
}

type recordingProvider struct {
	*sandbox.Provider
	keys *[]string
}

func (r recordingProvider) InitiatePayout(ctx context.Context, in models.PayoutInstruction) (*models.Payout, error) {
	*r.keys = append(*r.keys, in.IdempotencyKey)
	return r.Provider.InitiatePayout(ctx, in)
}
