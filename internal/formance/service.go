package formance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Compile-time check: *Mirror must satisfy ledger.JournalMirror.
var _ ledger.JournalMirror = (*Mirror)(nil)

// Mirror copies committed cashier journal movements into a Formance Stack
// ledger. The local store stays authoritative; the mirror is for finance
// tooling and independent balance checks.
type Mirror struct {
	client    *v3.Formance
	ledger    string
	precision map[string]int
}

// NewMirror connects to the stack and creates the ledger if it doesn't
// already exist.
func NewMirror(ctx context.Context, cfg models.FormanceConfig, currencies []models.Currency) (*Mirror, error) {
	if cfg.ServerUrl == "" || cfg.ClientId == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires ServerUrl, ClientId, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "cashier"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("server_url", cfg.ServerUrl),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.ServerUrl),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientId),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	m := &Mirror{client: client, ledger: cfg.LedgerName, precision: precisions(currencies)}

	if err := m.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance mirror initialized", zap.String("ledger", cfg.LedgerName))
	return m, nil
}

func (m *Mirror) ensureLedger(ctx context.Context) error {
	_, err := m.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: m.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "cashier-settlement",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", m.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", m.ledger))
	return nil
}

func precisions(currencies []models.Currency) map[string]int {
	out := make(map[string]int, len(currencies))
	for _, c := range currencies {
		out[strings.ToUpper(c.Symbol)] = c.Precision
	}
	return out
}

func (m *Mirror) precisionFor(symbol string) (int, error) {
	p, ok := m.precision[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("no precision configured for currency %q", symbol)
	}
	return p, nil
}

// formanceAsset returns the Formance UMN notation, e.g. "USDC/6".
func formanceAsset(symbol string, precision int) string {
	return fmt.Sprintf("%s/%d", strings.ToUpper(symbol), precision)
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

// isNotFoundError checks whether a Formance SDK error is NOT_FOUND.
func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}
