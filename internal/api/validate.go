package api

import (
	"context"
	"fmt"
	"strings"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

func (s *CashierService) currency(symbol string) (models.Currency, error) {
	c, ok := s.currencies[strings.ToUpper(symbol)]
	if !ok {
		return models.Currency{}, fmt.Errorf("%w: unsupported currency %q", store.ErrBadRequest, symbol)
	}
	return c, nil
}

func validateAmount(c models.Currency, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", store.ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(int32(c.Precision))) {
		return fmt.Errorf("%w: %s supports %d decimal places", store.ErrInvalidAmount, c.Symbol, c.Precision)
	}
	return nil
}

// eligiblePlayer loads an active player; withdrawals also need approved KYC.
func (s *CashierService) eligiblePlayer(ctx context.Context, playerId string, withdrawal bool) (*models.Player, error) {
	if playerId == "" {
		return nil, fmt.Errorf("%w: player_id is required", store.ErrBadRequest)
	}
	p, err := s.store.GetPlayer(ctx, playerId)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: player %s is inactive", store.ErrNotEligible, playerId)
	}
	if withdrawal && p.KycStatus != models.KycApproved {
		return nil, fmt.Errorf("%w: player %s kyc status is %s", store.ErrNotEligible, playerId, p.KycStatus)
	}
	return p, nil
}
