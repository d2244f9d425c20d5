package models

import "github.com/shopspring/decimal"

// Portfolio represents a Prime portfolio
type Portfolio struct {
	Id   string
	Name string
}

// PrimeWallet represents a Prime wallet
type PrimeWallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// PayoutInstruction is what the cashier asks a payout provider to send
type PayoutInstruction struct {
	TransactionId  string
	PlayerId       string
	Currency       string
	Amount         decimal.Decimal
	Destination    string
	IdempotencyKey string
}

// Payout is the provider's acknowledgement of an instruction
type Payout struct {
	Provider    string
	ProviderRef string
	ActivityId  string
}
