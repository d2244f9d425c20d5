package postgres

const (
	schema = `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		kyc_status TEXT NOT NULL DEFAULT 'pending',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS wallets (
		player_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		available NUMERIC(38, 18) NOT NULL DEFAULT 0 CHECK (available >= 0),
		held NUMERIC(38, 18) NOT NULL DEFAULT 0 CHECK (held >= 0),
		version BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (player_id, currency)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		player_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount NUMERIC(38, 18) NOT NULL CHECK (amount > 0),
		state TEXT NOT NULL,
		provider_ref TEXT UNIQUE,
		idempotency_key TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		payout_attempts INTEGER NOT NULL DEFAULT 0,
		payout_claim TEXT NOT NULL DEFAULT '',
		payout_claimed_at TIMESTAMPTZ,
		reviewed_by TEXT NOT NULL DEFAULT '',
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_player_created ON transactions(player_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state);

	CREATE TABLE IF NOT EXISTS transition_events (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		from_state TEXT NOT NULL DEFAULT '',
		to_state TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		actor_role TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transition_events_transaction ON transition_events(transaction_id, seq);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		event TEXT NOT NULL,
		account TEXT NOT NULL,
		currency TEXT NOT NULL,
		debit_amount NUMERIC(38, 18) NOT NULL DEFAULT 0,
		credit_amount NUMERIC(38, 18) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account, currency);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		response BYTEA,
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (scope, key)
	);`

	// Player queries
	playerColumns = `id, name, email, kyc_status, active, created_at, updated_at`

	queryListPlayers = `SELECT ` + playerColumns + ` FROM players WHERE active ORDER BY created_at`

	queryInsertPlayer = `
		INSERT INTO players (id, name, email, kyc_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	queryGetPlayerById = `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	queryGetPlayerByEmail = `SELECT ` + playerColumns + ` FROM players WHERE email = $1 AND active`

	queryUpdateKycStatus = `UPDATE players SET kyc_status = $1, updated_at = $2 WHERE id = $3`

	// Wallet queries
	walletColumns = `player_id, currency, available::text, held::text, version, updated_at`

	queryInsertWalletIfMissing = `
		INSERT INTO wallets (player_id, currency, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id, currency) DO NOTHING`

	queryGetWallet = `SELECT ` + walletColumns + ` FROM wallets WHERE player_id = $1 AND currency = $2`

	queryGetWalletForUpdate = queryGetWallet + ` FOR UPDATE`

	queryListWallets = `SELECT ` + walletColumns + ` FROM wallets WHERE player_id = $1 ORDER BY currency`

	queryUpdateWallet = `
		UPDATE wallets
		SET available = $1, held = $2, version = version + 1, updated_at = $3
		WHERE player_id = $4 AND currency = $5 AND version = $6`

	// Transaction queries
	transactionColumns = `
		id, type, player_id, currency, amount::text, state, provider_ref, idempotency_key,
		destination, reason, payout_attempts, payout_claim, payout_claimed_at, reviewed_by, reviewed_at,
		created_at, updated_at`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, type, player_id, currency, amount, state, provider_ref, idempotency_key,
			destination, reason, payout_attempts, payout_claim, payout_claimed_at, reviewed_by, reviewed_at,
		created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	queryGetTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	queryGetTransactionForUpdate = queryGetTransaction + ` FOR UPDATE`

	queryGetTransactionByProviderRefForUpdate = `SELECT ` + transactionColumns + `
		FROM transactions WHERE provider_ref = $1 FOR UPDATE`

	queryListTransactions = `SELECT ` + transactionColumns + ` FROM transactions`

	queryUpdateTransaction = `
		UPDATE transactions
		SET state = $1, provider_ref = $2, reason = $3, payout_attempts = $4,
			payout_claim = $5, payout_claimed_at = $6,
			reviewed_by = $7, reviewed_at = $8, updated_at = $9
		WHERE id = $10 AND state = $11`

	// Transition event queries
	queryInsertTransitionEvent = `
		INSERT INTO transition_events (
			id, transaction_id, from_state, to_state, actor_id, actor_role, reason, idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	queryListTransitionEvents = `
		SELECT id, transaction_id, from_state, to_state, actor_id, actor_role, reason, idempotency_key, created_at
		FROM transition_events
		WHERE transaction_id = $1
		ORDER BY seq`

	// Journal queries
	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, event, account, currency, debit_amount, credit_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	queryJournalBalance = `
		SELECT COALESCE(SUM(debit_amount - credit_amount), 0)::text
		FROM journal_entries
		WHERE account = $1 AND currency = $2`

	// Idempotency queries
	queryGetIdempotencyRecord = `
		SELECT scope, key, request_hash, status, transaction_id, response, error_code, error_message, created_at, updated_at
		FROM idempotency_keys
		WHERE scope = $1 AND key = $2`

	queryInsertIdempotencyRecord = `
		INSERT INTO idempotency_keys (
			scope, key, request_hash, status, transaction_id, response, error_code, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (scope, key) DO NOTHING`

	queryUpdateIdempotencyRecord = `
		UPDATE idempotency_keys
		SET status = $1, transaction_id = $2, response = $3, error_code = $4, error_message = $5, updated_at = $6
		WHERE scope = $7 AND key = $8`

	queryDeleteIdempotencyRecord = `DELETE FROM idempotency_keys WHERE scope = $1 AND key = $2`
)
