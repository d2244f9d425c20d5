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

package database

const (
	// Player queries
	queryListPlayers = `
		SELECT id, name, email, kyc_status, active, created_at, updated_at
		FROM players
		WHERE active = 1
		ORDER BY created_at`

	queryInsertPlayer = `
		INSERT INTO players (id, name, email, kyc_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryInsertDummyPlayer = `
		INSERT OR IGNORE INTO players (id, name, email, kyc_status) VALUES (?, ?, ?, ?)`

	queryGetPlayerById = `
		SELECT id, name, email, kyc_status, active, created_at, updated_at
		FROM players
		WHERE id = ?`

	queryGetPlayerByEmail = `
		SELECT id, name, email, kyc_status, active, created_at, updated_at
		FROM players
		WHERE email = ? AND active = 1`

	queryUpdateKycStatus = `
		UPDATE players SET kyc_status = ?, updated_at = ? WHERE id = ?`

	// Wallet queries
	queryInsertWalletIfMissing = `
		INSERT OR IGNORE INTO wallets (player_id, currency, available, held, version, updated_at)
		VALUES (?, ?, '0', '0', 1, ?)`

	queryGetWallet = `
		SELECT player_id, currency, available, held, version, updated_at
		FROM wallets
		WHERE player_id = ? AND currency = ?`

	queryListWallets = `
		SELECT player_id, currency, available, held, version, updated_at
		FROM wallets
		WHERE player_id = ?
		ORDER BY currency`

	queryUpdateWallet = `
		UPDATE wallets
		SET available = ?, held = ?, version = version + 1, updated_at = ?
		WHERE player_id = ? AND currency = ? AND version = ?`

	// Transaction queries
	transactionColumns = `
		id, type, player_id, currency, amount, state, provider_ref, idempotency_key,
		destination, reason, payout_attempts, payout_claim, payout_claimed_at, reviewed_by, reviewed_at,
		created_at, updated_at`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, type, player_id, currency, amount, state, provider_ref, idempotency_key,
			destination, reason, payout_attempts, payout_claim, payout_claimed_at, reviewed_by, reviewed_at,
		created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `SELECT` + transactionColumns + `
		FROM transactions
		WHERE id = ?`

	queryGetTransactionByProviderRef = `SELECT` + transactionColumns + `
		FROM transactions
		WHERE provider_ref = ?`

	queryListTransactions = `SELECT` + transactionColumns + `
		FROM transactions`

	queryUpdateTransaction = `
		UPDATE transactions
		SET state = ?, provider_ref = ?, reason = ?, payout_attempts = ?,
			payout_claim = ?, payout_claimed_at = ?,
			reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND state = ?`

	// Transition event queries
	queryInsertTransitionEvent = `
		INSERT INTO transition_events (
			id, transaction_id, from_state, to_state, actor_id, actor_role, reason, idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryListTransitionEvents = `
		SELECT id, transaction_id, from_state, to_state, actor_id, actor_role, reason, idempotency_key, created_at
		FROM transition_events
		WHERE transaction_id = ?
		ORDER BY created_at, rowid`

	// Journal queries
	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, event, account, currency, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryJournalForAccount = `
		SELECT debit_amount, credit_amount
		FROM journal_entries
		WHERE account = ? AND currency = ?`

	// Idempotency queries
	queryGetIdempotencyRecord = `
		SELECT scope, key, request_hash, status, transaction_id, response, error_code, error_message, created_at, updated_at
		FROM idempotency_keys
		WHERE scope = ? AND key = ?`

	queryInsertIdempotencyRecord = `
		INSERT OR IGNORE INTO idempotency_keys (
			scope, key, request_hash, status, transaction_id, response, error_code, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateIdempotencyRecord = `
		UPDATE idempotency_keys
		SET status = ?, transaction_id = ?, response = ?, error_code = ?, error_message = ?, updated_at = ?
		WHERE scope = ? AND key = ?`

	queryDeleteIdempotencyRecord = `
		DELETE FROM idempotency_keys WHERE scope = ? AND key = ?`
)
