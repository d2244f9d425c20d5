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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositRequest opens a pending deposit
type DepositRequest struct {
	PlayerId    string          `json:"player_id"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	ProviderRef string          `json:"provider_ref,omitempty"`
}

// WithdrawalRequest submits a withdrawal and places the hold
type WithdrawalRequest struct {
	PlayerId    string          `json:"player_id"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

// TransitionRequest carries the operator's reason and, optionally, the state
// the operator observed. When ExpectedState is set the transition fails if the
// record has moved on.
type TransitionRequest struct {
	Reason        string `json:"reason,omitempty"`
	ExpectedState string `json:"expected_state,omitempty"`
}

// ProviderEvent is the body of a provider webhook
type ProviderEvent struct {
	EventId     string `json:"event_id,omitempty"`
	ProviderRef string `json:"provider_ref"`
	Kind        string `json:"kind"`    // deposit or payout
	Outcome     string `json:"outcome"` // success or failure
	// Amount is what the provider moved, as a decimal string. Optional.
	Amount string `json:"amount,omitempty"`
}

// WebhookAck is the webhook response body
type WebhookAck struct {
	Result        string `json:"result"`
	TransactionId string `json:"transaction_id,omitempty"`
}

// BalanceView is a wallet as seen by the player
type BalanceView struct {
	PlayerId  string          `json:"player_id"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
}

// TransactionRecord represents a transaction in the player's history
type TransactionRecord struct {
	Id             string          `json:"id"`
	Type           string          `json:"type"` // "deposit", "withdrawal"
	PlayerId       string          `json:"player_id"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	State          string          `json:"state"`
	ProviderRef    string          `json:"provider_ref,omitempty"`
	Destination    string          `json:"destination,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	PayoutAttempts int             `json:"payout_attempts"`
	ReviewedBy     string          `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TransitionRecord is one history row in API form
type TransitionRecord struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ActorId   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TransactionDetail is a transaction with its full transition history
type TransactionDetail struct {
	TransactionRecord
	Events []TransitionRecord `json:"events"`
}

// TransactionPage is one page of history
type TransactionPage struct {
	Transactions []TransactionRecord `json:"transactions"`
	Limit        int                 `json:"limit"`
	Offset       int                 `json:"offset"`
}

// ErrorBody is the wire error
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewTransactionRecord converts a stored transaction to its API form
func NewTransactionRecord(t *Transaction) TransactionRecord {
	return TransactionRecord{
		Id:             t.Id,
		Type:           string(t.Type),
		PlayerId:       t.PlayerId,
		Currency:       t.Currency,
		Amount:         t.Amount,
		State:          string(t.State),
		ProviderRef:    t.ProviderRef,
		Destination:    t.Destination,
		Reason:         t.Reason,
		PayoutAttempts: t.PayoutAttempts,
		ReviewedBy:     t.ReviewedBy,
		ReviewedAt:     t.ReviewedAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}
