package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cashier-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

const maxPrecision = 18

// LoadCurrencies reads the cashier's supported currencies from a YAML file.
func LoadCurrencies(currenciesFile string) ([]models.Currency, error) {
	var currenciesPath string
	if filepath.IsAbs(currenciesFile) {
		currenciesPath = currenciesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		currenciesPath = filepath.Join(wd, currenciesFile)
	}

	data, err := os.ReadFile(currenciesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", currenciesFile, err)
	}

	return ParseCurrencies(data)
}

// ParseCurrencies validates a currencies document.
func ParseCurrencies(data []byte) ([]models.Currency, error) {
	var config models.CurrenciesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse currencies: %w", err)
	}
	if len(config.Currencies) == 0 {
		return nil, fmt.Errorf("no currencies configured")
	}

	seen := make(map[string]bool)
	for i := range config.Currencies {
		c := &config.Currencies[i]
		c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
		if c.Symbol == "" {
			return nil, fmt.Errorf("currency at index %d missing symbol", i)
		}
		if seen[c.Symbol] {
			return nil, fmt.Errorf("currency %s listed twice", c.Symbol)
		}
		seen[c.Symbol] = true
		if c.Precision < 0 || c.Precision > maxPrecision {
			return nil, fmt.Errorf("currency %s precision %d out of range", c.Symbol, c.Precision)
		}
		if c.MinWithdrawal != "" {
			min, err := decimal.NewFromString(c.MinWithdrawal)
			if err != nil || min.IsNegative() {
				return nil, fmt.Errorf("currency %s has invalid min_withdrawal %q", c.Symbol, c.MinWithdrawal)
			}
		}
	}

	return config.Currencies, nil
}

// CurrencySymbols lists the configured symbols in file order.
func CurrencySymbols(currencies []models.Currency) []string {
	symbols := make([]string, len(currencies))
	for i, c := range currencies {
		symbols[i] = c.Symbol
	}
	return symbols
}
