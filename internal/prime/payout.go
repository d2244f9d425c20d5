package prime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const Name = "prime"

// idempotencyNamespace seeds the UUIDs Prime sees. Prime requires UUID keys
// while cashier keys are free-form.
var idempotencyNamespace = uuid.MustParse("6f1c3a52-9a7e-4d53-8c2e-2b4f0d7e91a4")

var _ ledger.PayoutProvider = (*PayoutProvider)(nil)

type withdrawalCreator interface {
	CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (string, error)
}

// PayoutProvider sends withdrawals from the Prime wallet of their currency.
type PayoutProvider struct {
	withdrawals withdrawalCreator
	portfolioId string
	walletIds   map[string]string
	currencies  map[string]models.Currency
}

func NewPayoutProvider(svc *Service, portfolioId string, walletIds map[string]string, currencies []models.Currency) *PayoutProvider {
	return newPayoutProvider(svc, portfolioId, walletIds, currencies)
}

func newPayoutProvider(w withdrawalCreator, portfolioId string, walletIds map[string]string, currencies []models.Currency) *PayoutProvider {
	byName := make(map[string]models.Currency, len(currencies))
	for _, c := range currencies {
		byName[strings.ToUpper(c.Symbol)] = c
	}
	return &PayoutProvider{
		withdrawals: w,
		portfolioId: portfolioId,
		walletIds:   walletIds,
		currencies:  byName,
	}
}

func (p *PayoutProvider) Name() string {
	return Name
}

// IdempotencyKey maps a cashier key to the UUID sent to Prime. The same
// cashier key always maps to the same UUID, which is also the provider_ref
// the listener correlates Prime transactions by.
func IdempotencyKey(key string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(key)).String()
}

func (p *PayoutProvider) InitiatePayout(ctx context.Context, in models.PayoutInstruction) (*models.Payout, error) {
	if in.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", store.ErrBadRequest)
	}
	symbol := strings.ToUpper(in.Currency)
	walletId, ok := p.walletIds[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no Prime wallet configured for %s", store.ErrBadRequest, symbol)
	}
	if in.Destination == "" {
		return nil, fmt.Errorf("%w: destination address is required", store.ErrBadRequest)
	}

	c := p.currencies[symbol]
	key := IdempotencyKey(in.IdempotencyKey)

	activityId, err := p.withdrawals.CreateWithdrawal(ctx, CreateWithdrawalParams{
		PortfolioId:        p.portfolioId,
		WalletId:           walletId,
		DestinationAddress: in.Destination,
		Amount:             in.Amount.String(),
		Symbol:             symbol,
		NetworkId:          c.Network,
		NetworkType:        c.NetworkType,
		IdempotencyKey:     key,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// the key is deterministic, so a retry cannot double-send
		return nil, fmt.Errorf("%w: %v", store.ErrProviderTransient, err)
	}

	zap.L().Info("Prime payout initiated",
		zap.String("transaction_id", in.TransactionId),
		zap.String("player_id", in.PlayerId),
		zap.String("currency", symbol),
		zap.String("amount", in.Amount.String()),
		zap.String("prime_idempotency_key", key),
		zap.String("activity_id", activityId))

	return &models.Payout{
		Provider:    Name,
		ProviderRef: key,
		ActivityId:  activityId,
	}, nil
}
