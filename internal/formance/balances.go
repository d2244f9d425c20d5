package formance

import (
	"context"
	"fmt"
	"math/big"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// Drift compares a local wallet with its mirrored journal accounts.
type Drift struct {
	Key             models.WalletKey
	LocalAvailable  decimal.Decimal
	MirrorAvailable decimal.Decimal
	LocalHeld       decimal.Decimal
	MirrorHeld      decimal.Decimal
}

// InSync reports whether both buckets agree.
func (d Drift) InSync() bool {
	return d.LocalAvailable.Equal(d.MirrorAvailable) && d.LocalHeld.Equal(d.MirrorHeld)
}

// AccountBalance returns an account's balance in currency. Accounts the
// ledger has never seen have a zero balance.
func (m *Mirror) AccountBalance(ctx context.Context, address, currency string) (decimal.Decimal, error) {
	precision, err := m.precisionFor(currency)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := m.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  m.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get account %s: %w", address, err)
	}

	raw := volumeBalance(resp.V2AccountResponse.Data.Volumes, formanceAsset(currency, precision))
	return bigIntToDecimal(raw, precision), nil
}

// CheckWallet reads the mirrored balances of w's accounts.
func (m *Mirror) CheckWallet(ctx context.Context, w models.Wallet) (Drift, error) {
	available, err := m.AccountBalance(ctx, ledger.AvailableAccount(w.PlayerId), w.Currency)
	if err != nil {
		return Drift{}, err
	}
	held, err := m.AccountBalance(ctx, ledger.HeldAccount(w.PlayerId), w.Currency)
	if err != nil {
		return Drift{}, err
	}
	return Drift{
		Key:             w.Key(),
		LocalAvailable:  w.Available,
		MirrorAvailable: available,
		LocalHeld:       w.Held,
		MirrorHeld:      held,
	}, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, precision int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precision))
}
