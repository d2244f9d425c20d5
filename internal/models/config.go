package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database       DatabaseConfig
	Server         ServerConfig
	Auth           AuthConfig
	Provider       ProviderConfig
	Formance       FormanceConfig
	Coordinator    CoordinatorConfig
	Listener       ListenerConfig
	CurrenciesFile string
	LogLevel       string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver           string // sqlite or postgres
	Path             string
	Url              string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	CreateDummyUsers bool
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CorsAllowedOrigins []string
	InFlightLease      time.Duration
}

// AuthConfig holds the JWT and webhook secrets
type AuthConfig struct {
	JwtSecret     string
	JwtIssuer     string
	TokenTtl      time.Duration
	WebhookSecret string
}

// ProviderConfig selects and configures the payout provider
type ProviderConfig struct {
	Name             string // sandbox or prime
	PrimePortfolioId string
	PrimeWalletIds   map[string]string // currency -> Prime wallet id
	HttpTimeout      time.Duration
}

// FormanceConfig configures the optional journal mirror
type FormanceConfig struct {
	Enabled      bool
	ServerUrl    string
	ClientId     string
	ClientSecret string
	LedgerName   string
}

// CoordinatorConfig configures the client-side idempotency coordinator
type CoordinatorConfig struct {
	RetrySchedule []time.Duration
	CacheSize     int
	CacheTtl      time.Duration
	ServerUrl     string
	Token         string
}

// ListenerConfig holds provider poller settings
type ListenerConfig struct {
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// Currency is one entry of currencies.yaml
type Currency struct {
	Symbol        string `yaml:"symbol"`
	Name          string `yaml:"name"`
	Precision     int    `yaml:"precision"`
	MinWithdrawal string `yaml:"min_withdrawal"`
	Network       string `yaml:"network"`
	NetworkType   string `yaml:"network_type"`
}

// MinWithdrawalAmount parses MinWithdrawal, zero when unset or malformed.
func (c Currency) MinWithdrawalAmount() decimal.Decimal {
	if c.MinWithdrawal == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(c.MinWithdrawal)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// CurrenciesConfig is the top-level currencies.yaml document
type CurrenciesConfig struct {
	Currencies []Currency `yaml:"currencies"`
}
