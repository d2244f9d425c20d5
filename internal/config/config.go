/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cashier-settlement-go/internal/coordinator"
	"cashier-settlement-go/internal/models"
)

func Load() (*models.Config, error) {
	lookbackWindow, err := getEnvDuration("LISTENER_LOOKBACK_WINDOW", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	pollingInterval, err := getEnvDuration("LISTENER_POLLING_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("LISTENER_CLEANUP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	inFlightLease, err := getEnvDuration("IDEMPOTENCY_IN_FLIGHT_LEASE", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	tokenTtl, err := getEnvDuration("JWT_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	providerTimeout, err := getEnvDuration("PROVIDER_HTTP_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	retrySchedule, err := getEnvDurations("COORDINATOR_RETRY_SCHEDULE", coordinator.DefaultRetrySchedule)
	if err != nil {
		return nil, err
	}

	cacheTtl, err := getEnvDuration("COORDINATOR_CACHE_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	walletIds, err := getEnvMap("PRIME_WALLET_IDS")
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:           strings.ToLower(getEnvString("DATABASE_DRIVER", "sqlite")),
			Path:             getEnvString("DATABASE_PATH", "cashier.db"),
			Url:              getEnvString("DATABASE_URL", ""),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			BusyTimeout:      busyTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Server: models.ServerConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			ShutdownTimeout:    shutdownTimeout,
			CorsAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			InFlightLease:      inFlightLease,
		},
		Auth: models.AuthConfig{
			JwtSecret:     os.Getenv("JWT_SECRET"),
			JwtIssuer:     getEnvString("JWT_ISSUER", "cashier"),
			TokenTtl:      tokenTtl,
			WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		},
		Provider: models.ProviderConfig{
			Name:             strings.ToLower(getEnvString("PAYOUT_PROVIDER", "sandbox")),
			PrimePortfolioId: getEnvString("PRIME_PORTFOLIO_ID", ""),
			PrimeWalletIds:   walletIds,
			HttpTimeout:      providerTimeout,
		},
		Formance: models.FormanceConfig{
			Enabled:      getEnvBool("FORMANCE_ENABLED", false),
			ServerUrl:    getEnvString("FORMANCE_SERVER_URL", ""),
			ClientId:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "cashier"),
		},
		Coordinator: models.CoordinatorConfig{
			RetrySchedule: retrySchedule,
			CacheSize:     getEnvInt("COORDINATOR_CACHE_SIZE", 1024),
			CacheTtl:      cacheTtl,
			ServerUrl:     getEnvString("CASHIER_SERVER_URL", "http://localhost:8080"),
			Token:         getEnvString("CASHIER_TOKEN", ""),
		},
		Listener: models.ListenerConfig{
			LookbackWindow:  lookbackWindow,
			PollingInterval: pollingInterval,
			CleanupInterval: cleanupInterval,
		},
		CurrenciesFile: getEnvString("CURRENCIES_FILE", "currencies.yaml"),
		LogLevel:       getEnvString("LOG_LEVEL", "info"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.Url == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	switch cfg.Provider.Name {
	case "sandbox", "prime":
	default:
		return fmt.Errorf("unsupported PAYOUT_PROVIDER %q", cfg.Provider.Name)
	}

	if cfg.Formance.Enabled && (cfg.Formance.ServerUrl == "" || cfg.Formance.ClientId == "" || cfg.Formance.ClientSecret == "") {
		return fmt.Errorf("FORMANCE_SERVER_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET are required when FORMANCE_ENABLED is set")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

// getEnvDurations parses a comma separated list such as "0s,250ms,750ms".
func getEnvDurations(key string, defaultValue []time.Duration) ([]time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return append([]time.Duration(nil), defaultValue...), nil
	}

	var out []time.Duration
	for _, part := range strings.Split(value, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid duration list for %s: %q (%w)", key, value, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid duration list for %s: negative delay %s", key, d)
		}
		out = append(out, d)
	}
	return out, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvMap parses "USDC=wallet-1,ETH=wallet-2". Keys are upper-cased.
func getEnvMap(key string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range getEnvList(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid entry for %s: %q", key, pair)
		}
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}
