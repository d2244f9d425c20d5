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

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

func initLedgerSchema(db *sql.DB) error {
	schema := `
	-- Wallets (current state, one row per player and currency)
	CREATE TABLE IF NOT EXISTS wallets (
		player_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		available TEXT NOT NULL DEFAULT '0',
		held TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (player_id, currency)
	);

	-- Deposits and withdrawals
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		player_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		state TEXT NOT NULL,
		provider_ref TEXT UNIQUE,
		idempotency_key TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		payout_attempts INTEGER NOT NULL DEFAULT 0,
		payout_claim TEXT NOT NULL DEFAULT '',
		payout_claimed_at TIMESTAMP,
		reviewed_by TEXT NOT NULL DEFAULT '',
		reviewed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_player_created ON transactions(player_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state);

	-- Append-only state history
	CREATE TABLE IF NOT EXISTS transition_events (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		from_state TEXT NOT NULL DEFAULT '',
		to_state TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		actor_role TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transition_events_transaction ON transition_events(transaction_id);

	-- Double-entry journal, one debit and one credit row per movement
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		event TEXT NOT NULL,
		account TEXT NOT NULL,
		currency TEXT NOT NULL,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_transaction_id ON journal_entries(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account, currency);

	-- Server-side request dedupe
	CREATE TABLE IF NOT EXISTS idempotency_keys (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		response BLOB,
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (scope, key)
	);
	`

	_, err := db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
