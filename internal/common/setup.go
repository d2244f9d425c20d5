package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"cashier-settlement-go/internal/api"
	"cashier-settlement-go/internal/database"
	"cashier-settlement-go/internal/formance"
	"cashier-settlement-go/internal/ledger"
	"cashier-settlement-go/internal/metrics"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/postgres"
	"cashier-settlement-go/internal/prime"
	"cashier-settlement-go/internal/sandbox"
	"cashier-settlement-go/internal/settlement"
	"cashier-settlement-go/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

// Services is everything a cashier process needs, wired from one Config.
type Services struct {
	Config     *models.Config
	Currencies []models.Currency
	Store      store.LedgerStore
	Machine    *ledger.Machine
	Provider   ledger.PayoutProvider
	Reconciler *settlement.Reconciler
	Cashier    *api.CashierService
	Metrics    *metrics.Metrics

	// Set only when the Prime provider is configured.
	PrimeService *prime.Service
	PortfolioId  string

	// Set only when FORMANCE_ENABLED is true.
	Mirror *formance.Mirror
}

// InitializeLogger builds the production logger at level and installs it
// as the global zap logger.
func InitializeLogger(level string) (*zap.Logger, func()) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			log.Printf("Unknown LOG_LEVEL %q, using info\n", level)
		} else {
			zapCfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the store and wires the ledger machine, payout
// provider, reconciler and cashier service.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	currencies, err := LoadCurrencies(cfg.CurrenciesFile)
	if err != nil {
		return nil, err
	}

	st, err := InitializeStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	services := &Services{
		Config:     cfg,
		Currencies: currencies,
		Store:      st,
		Metrics:    metrics.New(),
	}

	if err := services.initializeProvider(ctx); err != nil {
		services.Close()
		return nil, err
	}

	opts := []ledger.Option{
		ledger.WithTransitionObserver(services.Metrics.ObserveTransition),
		ledger.WithClaimLease(cfg.Server.InFlightLease),
	}
	if cfg.Formance.Enabled {
		mirror, err := formance.NewMirror(ctx, cfg.Formance, currencies)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Mirror = mirror
		opts = append(opts, ledger.WithMirror(mirror))
	}

	services.Machine = ledger.NewMachine(st, opts...)
	services.Reconciler = settlement.NewReconciler(services.Machine, services.Provider.Name(), services.Metrics)

	services.Cashier, err = api.NewCashierService(api.Params{
		Machine:       services.Machine,
		Provider:      services.Provider,
		Reconciler:    services.Reconciler,
		Currencies:    currencies,
		InFlightLease: cfg.Server.InFlightLease,
		Recorder:      services.Metrics,
	})
	if err != nil {
		services.Close()
		return nil, err
	}

	zap.L().Info("Cashier services initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("provider", services.Provider.Name()),
		zap.Bool("formance", services.Mirror != nil),
		zap.Strings("currencies", CurrencySymbols(currencies)))

	return services, nil
}

// InitializeStore opens the configured database backend.
func InitializeStore(ctx context.Context, cfg models.DatabaseConfig) (store.LedgerStore, error) {
	switch cfg.Driver {
	case "postgres":
		svc, err := postgres.NewService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case "sqlite", "":
		svc, err := database.NewService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (s *Services) initializeProvider(ctx context.Context) error {
	switch s.Config.Provider.Name {
	case sandbox.Name:
		zap.L().Warn("Using sandbox payout provider, no funds will move")
		s.Provider = sandbox.New()
		return nil
	case prime.Name:
	default:
		return fmt.Errorf("unsupported payout provider %q", s.Config.Provider.Name)
	}

	primeService, portfolioId, err := InitializePrime(ctx, s.Config.Provider)
	if err != nil {
		return err
	}
	s.PrimeService = primeService
	s.PortfolioId = portfolioId
	s.Provider = prime.NewPayoutProvider(primeService, portfolioId, s.Config.Provider.PrimeWalletIds, s.Currencies)
	return nil
}

// InitializePrime loads Prime credentials and resolves the portfolio, using
// PRIME_PORTFOLIO_ID when set and the default portfolio otherwise.
func InitializePrime(ctx context.Context, cfg models.ProviderConfig) (*prime.Service, string, error) {
	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		return nil, "", err
	}

	primeService, err := prime.NewService(creds, cfg.HttpTimeout)
	if err != nil {
		return nil, "", err
	}

	if cfg.PrimePortfolioId != "" {
		return primeService, cfg.PrimePortfolioId, nil
	}

	zap.L().Info("Finding default portfolio")
	defaultPortfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		return nil, "", err
	}
	zap.L().Info("Using default portfolio",
		zap.String("name", defaultPortfolio.Name),
		zap.String("id", defaultPortfolio.Id))

	return primeService, defaultPortfolio.Id, nil
}

func (s *Services) Close() {
	if s.Store != nil {
		s.Store.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
