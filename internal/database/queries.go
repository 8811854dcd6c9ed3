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
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, currency, country, locked, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email, currency, country) VALUES (?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, currency, country, locked, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, currency, country, locked, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	querySetUserLocked = `
		UPDATE users SET locked = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	// Action ledger queries
	queryInsertAction = `
		INSERT INTO provider_actions (
			id, provider, external_bet_id, event_type, user_id, external_transaction_id,
			amount, resulting_transaction_id, fingerprint, status, decline_code, attempts,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	queryTouchAction = `
		UPDATE provider_actions
		SET attempts = attempts + 1, updated_at = ?
		WHERE provider = ? AND external_bet_id = ? AND event_type = ?
		RETURNING ` + actionColumns

	queryGetAction = `
		SELECT ` + actionColumns + `
		FROM provider_actions
		WHERE provider = ? AND external_bet_id = ? AND event_type = ?`

	queryDeleteAction = `
		DELETE FROM provider_actions WHERE id = ?`

	actionColumns = `id, provider, external_bet_id, event_type, user_id, external_transaction_id,
		amount, resulting_transaction_id, fingerprint, status, decline_code, attempts,
		created_at, updated_at`

	// Bet aggregate queries
	queryInsertAggregate = `
		INSERT INTO bet_aggregates (
			id, provider, external_identifier, user_id, state, bet_amount, pay_amount,
			balance_type, game_identifier, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, '0', '0', ?, ?, 1, ?, ?)
		ON CONFLICT(provider, external_identifier, user_id) DO NOTHING`

	queryGetAggregate = `
		SELECT ` + aggregateColumns + `
		FROM bet_aggregates
		WHERE provider = ? AND external_identifier = ? AND user_id = ?`

	queryGetAggregateById = `
		SELECT ` + aggregateColumns + `
		FROM bet_aggregates
		WHERE id = ?`

	queryUpdateAggregate = `
		UPDATE bet_aggregates
		SET state = ?, bet_amount = ?, pay_amount = ?, closed_out = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	aggregateColumns = `id, provider, external_identifier, user_id, state, bet_amount, pay_amount,
		balance_type, game_identifier, closed_out, version, created_at, updated_at`

	// Bonus queries
	queryInsertBonus = `
		INSERT INTO bonuses (id, user_id, template_id, status, round_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', ?, ?)`

	queryGetBonus = `
		SELECT id, user_id, template_id, status, round_ref, created_at, updated_at
		FROM bonuses
		WHERE id = ?`

	queryGetBonusByRound = `
		SELECT id, user_id, template_id, status, round_ref, created_at, updated_at
		FROM bonuses
		WHERE round_ref = ?
		ORDER BY updated_at DESC
		LIMIT 1`

	queryGetActiveBonus = `
		SELECT id, user_id, template_id, status, round_ref, created_at, updated_at
		FROM bonuses
		WHERE user_id = ? AND template_id = ? AND status = 'active'
		ORDER BY created_at ASC
		LIMIT 1`

	queryUpdateBonusStatus = `
		UPDATE bonuses SET status = ?, round_ref = ?, updated_at = ? WHERE id = ?`

	queryUpsertTemplate = `
		INSERT INTO bonus_templates (id, provider, external_id, kind, balance_type, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, external_id) DO UPDATE SET
			kind = excluded.kind, balance_type = excluded.balance_type, value = excluded.value`

	queryGetTemplate = `
		SELECT id, provider, external_id, kind, balance_type, value
		FROM bonus_templates
		WHERE provider = ? AND external_id = ?`

	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM account_balances
		WHERE user_id = ? AND balance_type = ?`

	queryGetAllUserBalances = `
		SELECT id, user_id, balance_type, balance, last_transaction_id, version, updated_at
		FROM account_balances
		WHERE user_id = ? AND balance != 0
		ORDER BY balance_type`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0) as calculated_balance
		FROM transactions
		WHERE user_id = ? AND balance_type = ? AND status = 'confirmed'`

	queryUnbackedActions = `
		SELECT a.provider || ':' || a.external_bet_id || ':' || a.event_type
		FROM provider_actions a
		JOIN bet_aggregates g
			ON g.provider = a.provider AND g.external_identifier = a.external_bet_id AND g.user_id = a.user_id
		LEFT JOIN transactions t ON t.id = a.resulting_transaction_id
		WHERE a.user_id = ? AND g.balance_type = ?
			AND a.status = 'processed' AND a.resulting_transaction_id != ''
			AND (t.id IS NULL OR t.reference IS NULL
				OR t.reference != a.provider || ':' || a.external_bet_id || ':' || a.event_type)
		ORDER BY a.created_at, a.event_type`

	// Transaction queries
	queryGetTransactionByReference = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE reference = ?
		LIMIT 1`

	queryGetAccountBalance = `
		SELECT id, balance, version
		FROM account_balances
		WHERE user_id = ? AND balance_type = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, balance_type, balance, last_transaction_id, version)
		VALUES (?, ?, ?, ?, '', ?)`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, balance_type, transaction_type, amount, balance_before, balance_after,
			reference, meta, status, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + transactionColumns

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND balance_type = ? AND version = ?`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND balance_type = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	transactionColumns = `id, user_id, balance_type, transaction_type, amount, balance_before, balance_after,
		reference, meta, status, created_at, processed_at`
)
